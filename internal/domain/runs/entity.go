package runs

import (
	"time"

	"github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"
)

// ID tipe untuk Run
type RunID string

// Status enum
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// SeverityCounts value object, aggregated from scan stages.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add merges another set of counts into this one.
func (c *SeverityCounts) Add(o SeverityCounts) {
	c.Critical += o.Critical
	c.High += o.High
	c.Medium += o.Medium
	c.Low += o.Low
	c.Total += o.Total
}

// StageResult is the recorded outcome of one stage within a run.
type StageResult struct {
	Name        string         `json:"name"`
	Kind        pipelines.Kind `json:"kind"`
	Status      Status         `json:"status"`
	ExitCode    int            `json:"exit_code"`
	DurationMS  int64          `json:"duration_ms"`
	ArtifactURL string         `json:"artifact_url,omitempty"`
	Counts      SeverityCounts `json:"counts"`
	Message     string         `json:"message,omitempty"`
}

// Aggregate Root: Run
type Run struct {
	ID          RunID          `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Pipeline    string         `json:"pipeline"`
	Branch      string         `json:"branch,omitempty"`
	CommitSHA   string         `json:"commit_sha,omitempty"`
	Source      string         `json:"source,omitempty"`
	TriggeredAt time.Time      `json:"triggered_at"`
	Status      Status         `json:"status"`
	Stages      []StageResult  `json:"stages"`
	Counts      SeverityCounts `json:"counts"`
	DurationMS  int64          `json:"duration_ms"`
	Metadata    any            `json:"metadata,omitempty"`
}
