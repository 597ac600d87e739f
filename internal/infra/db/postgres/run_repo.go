package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

type RunRepository struct{ db *sql.DB }

func NewRunRepository(db *sql.DB) *RunRepository { return &RunRepository{db: db} }

// Save insert/update Run record
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO pipeline_runs
(id, tenant_id, triggered_at, pipeline, branch, commit_sha, source, status,
 critical, high, medium, low, findings_total,
 stages_json, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,
        $9,$10,$11,$12,$13,
        $14,$15)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 critical = EXCLUDED.critical,
 high = EXCLUDED.high,
 medium = EXCLUDED.medium,
 low = EXCLUDED.low,
 findings_total = EXCLUDED.findings_total,
 stages_json = EXCLUDED.stages_json,
 duration_ms = EXCLUDED.duration_ms;`

	tenant := stringOrDash(run.TenantID)
	pipeline := stringOrDash(run.Pipeline)
	status := stringOrDash(string(run.Status))
	triggered := run.TriggeredAt
	if triggered.IsZero() { triggered = time.Now() }

	stages, err := json.Marshal(run.Stages)
	if err != nil { return err }

	_, err = r.db.ExecContext(ctx, q,
		run.ID, tenant, triggered, pipeline, run.Branch, run.CommitSHA, run.Source, status,
		run.Counts.Critical, run.Counts.High, run.Counts.Medium, run.Counts.Low, run.Counts.Total,
		string(stages), run.DurationMS,
	)
	return err
}

// Get by ID + Tenant
func (r *RunRepository) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	const q = `
SELECT id, tenant_id, triggered_at, pipeline, branch, commit_sha, source, status,
       critical, high, medium, low, findings_total,
       stages_json, duration_ms
FROM pipeline_runs
WHERE tenant_id=$1 AND id=$2
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, tenant, id)
	return scanRun(row.Scan)
}

// Latest runs per tenant
func (r *RunRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Run, error) {
	if limit <= 0 { limit = 20 }
	const q = `
SELECT id, tenant_id, triggered_at, pipeline, branch, commit_sha, source, status,
       critical, high, medium, low, findings_total,
       stages_json, duration_ms
FROM pipeline_runs
WHERE tenant_id=$1 ORDER BY triggered_at DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	return collectRuns(rows)
}

// Paginate returns a page of runs ordered by recency
func (r *RunRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 { page = 1 }
	if pageSize <= 0 { pageSize = 20 }
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, triggered_at, pipeline, branch, commit_sha, source, status,
       critical, high, medium, low, findings_total,
       stages_json, duration_ms
FROM pipeline_runs
WHERE tenant_id=$1
ORDER BY triggered_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil { return nil, err }
	defer rows.Close()
	return collectRuns(rows)
}

// Summary counts run results since N days
func (r *RunRepository) Summary(ctx context.Context, tenant string, sinceDays int) (int, int, int, int, error) {
	if sinceDays <= 0 { sinceDays = 7 }
	const q = `
SELECT COUNT(*),
       COALESCE(SUM(critical),0), COALESCE(SUM(high),0), COALESCE(SUM(medium),0)
FROM pipeline_runs
WHERE tenant_id=$1 AND triggered_at >= NOW() - ($2 || ' days')::interval;`
	var total, critical, high, medium int
	err := r.db.QueryRowContext(ctx, q, tenant, sinceDays).Scan(&total, &critical, &high, &medium)
	if err != nil { return 0, 0, 0, 0, err }
	return total, critical, high, medium, nil
}

// UpdateStatus sets the status of one run
func (r *RunRepository) UpdateStatus(ctx context.Context, tenant string, id domain.RunID, status domain.Status) error {
	const q = `UPDATE pipeline_runs SET status=$1 WHERE tenant_id=$2 AND id=$3;`
	_, err := r.db.ExecContext(ctx, q, string(status), tenant, id)
	return err
}

func collectRuns(rows *sql.Rows) ([]*domain.Run, error) {
	var out []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil { return nil, err }
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*domain.Run, error) {
	var run domain.Run
	var crit, hi, med, lo, tot int
	var stagesJSON string
	if err := scan(
		&run.ID, &run.TenantID, &run.TriggeredAt, &run.Pipeline, &run.Branch, &run.CommitSHA, &run.Source, &run.Status,
		&crit, &hi, &med, &lo, &tot,
		&stagesJSON, &run.DurationMS,
	); err != nil {
		return nil, err
	}
	run.Counts = domain.SeverityCounts{Critical: crit, High: hi, Medium: med, Low: lo, Total: tot}
	if stagesJSON != "" && stagesJSON != "null" {
		if err := json.Unmarshal([]byte(stagesJSON), &run.Stages); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" { return "-" }
	return s
}
