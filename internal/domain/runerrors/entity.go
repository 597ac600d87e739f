package runerrors

import "time"

// RunError represents a persisted pipeline run error entry
type RunError struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage,omitempty"`
	Phase       string    `json:"phase,omitempty"` // trigger | retry | other
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
