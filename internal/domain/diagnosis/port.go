package diagnosis

import "context"

// Repository port for persisting and querying diagnoses
type Repository interface {
	Save(ctx context.Context, d *Diagnosis) error
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Diagnosis, error)
	LatestByRun(ctx context.Context, tenant string, runID string) (*Diagnosis, error)
}
