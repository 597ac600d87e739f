package diagnosis

import "time"

// DiagnosisID identifier type
type DiagnosisID string

// Diagnosis represents an AI failure diagnosis stored for auditing and retrieval
type Diagnosis struct {
	ID        DiagnosisID `json:"id"`
	TenantID  string      `json:"tenant_id"`
	RunID     string      `json:"run_id,omitempty"`
	FileURL   string      `json:"file_url"`
	Result    string      `json:"result"` // JSON string from AI
	CreatedAt time.Time   `json:"created_at"`
}
