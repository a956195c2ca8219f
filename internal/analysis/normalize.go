package analysis

import (
	"encoding/json"
	"strconv"
)

// DefaultSummary is used when the external payload carries no summary text.
const DefaultSummary = "Analysis complete."

// frameKeys are the candidate field names for the per-frame emotion sequence,
// checked in priority order. The external API has been observed to use both.
var frameKeys = []string{"frames", "video_emotions"}

// Normalize converts a raw external payload into a Result.
//
// Normalize is total: it never fails, for any input including nil. Missing or
// malformed fields default to their zero value (0.0 for scalars, empty slice
// for sequences) so a degraded external response still yields a usable
// result. This mirrors the client's degrade-not-fail polling policy; a
// normalizer that rejected partial payloads would turn every degraded
// response into a fatal error.
func Normalize(raw map[string]any) Result {
	result := Result{
		Confidence: asFloat(raw["confidence_score"]),
		Clarity:    asFloat(raw["clarity_score"]),
		Resilience: asFloat(raw["resilience_score"]),
		Engagement: asFloat(raw["engagement_score"]),
		Summary:    asString(raw["summary"]),
		Metrics: Metrics{
			Timeline:     []Sample{},
			FeedbackTips: []string{},
		},
	}
	if result.Summary == "" {
		result.Summary = DefaultSummary
	}

	frames := extractFrames(raw)

	// The external API reports one frame per 1/fps seconds. Keeping every
	// fps-th frame yields one sample per second of source media.
	rate := int(asFloat(raw["fps"]))
	if rate <= 0 {
		rate = 1
	}

	for i := 0; i < len(frames); i += rate {
		frame, ok := frames[i].(map[string]any)
		if !ok {
			frame = map[string]any{}
		}

		sample := Sample{
			Timestamp: float64(i) / float64(rate),
		}
		if va, ok := frame["valence_arousal"].(map[string]any); ok {
			sample.Valence = asFloat(va["valence"])
			sample.Arousal = asFloat(va["arousal"])
		}

		result.Metrics.Timeline = append(result.Metrics.Timeline, sample)
	}

	return result
}

// extractFrames locates the frame sequence under the first candidate key
// holding a list. Returns an empty slice when none is present.
func extractFrames(raw map[string]any) []any {
	for _, key := range frameKeys {
		if frames, ok := raw[key].([]any); ok {
			return frames
		}
	}
	return nil
}

// asFloat coerces a decoded JSON value to float64, defaulting to 0.0.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asString coerces a value to string, defaulting to "".
func asString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
