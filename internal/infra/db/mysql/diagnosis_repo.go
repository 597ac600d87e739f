package mysql

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

// Save inserts a diagnosis record
func (r *DiagnosisRepository) Save(ctx context.Context, d *domain.Diagnosis) error {
	const q = `
INSERT INTO run_diagnoses
  (id, tenant_id, run_id, file_url, result_json, created_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  tenant_id=VALUES(tenant_id), run_id=VALUES(run_id), file_url=VALUES(file_url), result_json=VALUES(result_json);
`
	// Ensure non-nullable fields have safe defaults
	tenant := stringOrDash(d.TenantID)
	fileURL := stringOrDash(d.FileURL)
	result := d.Result
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
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
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, run_id, file_url, result_json, created_at
FROM run_diagnoses
WHERE tenant_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return nil, err
	}
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
WHERE tenant_id=? AND run_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, tenant, runID)
	var d domain.Diagnosis
	var created time.Time
	if err := row.Scan(&d.ID, &d.TenantID, &d.RunID, &d.FileURL, &d.Result, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.CreatedAt = created
	return &d, nil
}
