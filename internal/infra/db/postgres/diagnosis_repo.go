package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-ci/internal/domain/diagnosis"
)

type DiagnosisRepository struct {
	db *sql.DB
}

func NewDiagnosisRepository(db *sql.DB) *DiagnosisRepository {
	return &DiagnosisRepository{db: db}
}

// Save inserts or updates a diagnosis record
func (r *DiagnosisRepository) Save(ctx context.Context, d *domain.Diagnosis) error {
	const q = `
INSERT INTO run_diagnoses
  (id, tenant_id, run_id, file_url, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  tenant_id=EXCLUDED.tenant_id,
  run_id=EXCLUDED.run_id,
  file_url=EXCLUDED.file_url,
  result_json=EXCLUDED.result_json;
`
	tenant := stringOrDash(d.TenantID)
	fileURL := stringOrDash(d.FileURL)
	result := d.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, d.ID, tenant, d.RunID, fileURL, result, createdAt)
	return err
}

// Paginate returns a page of diagnosis records ordered by created_at desc
func (r *DiagnosisRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Diagnosis, error) {
	if page <= 0 { page = 1 }
	if pageSize <= 0 { pageSize = 20 }
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, run_id, file_url, result_json, created_at
FROM run_diagnoses
WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil { return nil, err }
	defer rows.Close()

	var out []*domain.Diagnosis
	for rows.Next() {
		var d domain.Diagnosis
		var created time.Time
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RunID, &d.FileURL, &d.Result, &created); err != nil {
			return nil, err
		}
		d.CreatedAt = created
		out = append(out, &d)
	}
	return out, rows.Err()
}

// LatestByRun returns the latest diagnosis for a given run
func (r *DiagnosisRepository) LatestByRun(ctx context.Context, tenant string, runID string) (*domain.Diagnosis, error) {
	const q = `
SELECT id, tenant_id, run_id, file_url, result_json, created_at
FROM run_diagnoses
WHERE tenant_id=$1 AND run_id=$2
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, tenant, runID)
	var d domain.Diagnosis
	var created time.Time
	if err := row.Scan(&d.ID, &d.TenantID, &d.RunID, &d.FileURL, &d.Result, &created); err != nil {
		if err == sql.ErrNoRows { return nil, nil }
		return nil, err
	}
	d.CreatedAt = created
	return &d, nil
}
