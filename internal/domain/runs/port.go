package runs

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, r *Run) error
	Get(ctx context.Context, tenant string, id RunID) (*Run, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Run, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (int, int, int, int, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Run, error)
	UpdateStatus(ctx context.Context, tenant string, id RunID, status Status) error
}

// StageRunner port (interface untuk eksekusi stage)
type StageRunner interface {
	Run(ctx context.Context, req StageRequest) (StageOutcome, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}

// Deployer port: triggers the deployment orchestrator webhook.
type Deployer interface {
	Trigger(ctx context.Context, force bool) error
}

// QualityGate port: submits a coverage report to the code-quality service.
type QualityGate interface {
	Submit(ctx context.Context, reportPath, commitSHA, branch string) (string, error)
}
