package history

import "time"

// Promotion outcomes
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// PromotionRecord represents a single promotion attempt in the database
type PromotionRecord struct {
	ID              int64      `json:"id"`
	AttemptID       string     `json:"attempt_id"`
	BuildName       string     `json:"build_name"`
	BuildNumber     string     `json:"build_number"`
	Target          string     `json:"target_repository"`
	Status          string     `json:"status"`                     // success, rejected, failed
	StatusCode      int        `json:"status_code"`
	Artifacts       int        `json:"artifacts"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`     // nullable
	DurationSeconds *float64   `json:"duration_seconds,omitempty"` // nullable
	User            *string    `json:"user,omitempty"`             // nullable
	Message         *string    `json:"message,omitempty"`          // nullable
}

// BuildStatus represents the latest promotion state of a build name
type BuildStatus struct {
	BuildName       string            `json:"build_name"`
	LatestPromotion *PromotionRecord  `json:"latest_promotion,omitempty"`
	RecentHistory   []PromotionRecord `json:"recent_history"`
}

// StatusForCode maps a promotion result status code to a history status
func StatusForCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return StatusSuccess
	case code >= 400 && code < 500:
		return StatusRejected
	default:
		return StatusFailed
	}
}
