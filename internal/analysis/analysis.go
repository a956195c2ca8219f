// Package analysis provides the normalized result model for an emotion
// analysis run and the normalizer that maps raw external payloads into it.
package analysis

// Sample is one point on the emotion timeline.
type Sample struct {
	// Timestamp is the offset in seconds from the start of the video.
	Timestamp float64 `json:"timestamp"`
	// Valence is the pleasantness axis (-1..1, 0 when unknown).
	Valence float64 `json:"valence"`
	// Arousal is the energy axis (0..1, 0 when unknown).
	Arousal float64 `json:"arousal"`
}

// Metrics is the timeline bundle stored alongside the scalar scores.
type Metrics struct {
	// Timeline is the per-second emotion samples, ordered by timestamp.
	Timeline []Sample `json:"timeline"`
	// FeedbackTips are derived coaching annotations, if any.
	FeedbackTips []string `json:"feedback_tips"`
}

// Result is the normalized outcome of one analysis run.
// Scalar scores default to 0.0 when the external payload omits them.
type Result struct {
	// Confidence is the confidence score (0-100).
	Confidence float64 `json:"confidence_score"`
	// Clarity is the clarity score (0-100).
	Clarity float64 `json:"clarity_score"`
	// Resilience is the resilience score (0-100).
	Resilience float64 `json:"resilience_score"`
	// Engagement is the engagement score (0-100).
	Engagement float64 `json:"engagement_score"`
	// Summary is the free-text transcript or summary of the session.
	Summary string `json:"summary"`
	// Metrics holds the emotion timeline for graphing.
	Metrics Metrics `json:"metrics"`
}
