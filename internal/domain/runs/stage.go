package runs

import "github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"

// StageRequest untuk StageRunner
type StageRequest struct {
	RunID     string
	Stage     pipelines.Stage
	Branch    string
	CommitSHA string
}

// StageOutcome hasil dari StageRunner
type StageOutcome struct {
	Counts            SeverityCounts
	LocalArtifactPath string
	RawFormat         string
	ExitCode          int
	DurationMS        int64
}
