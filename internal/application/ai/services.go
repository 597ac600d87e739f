package ai

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-ci/internal/domain/ai"
	"github.com/bryanwahyu/automaton-ci/internal/domain/diagnosis"
)

type Service struct {
	client ai.Client
	repo   diagnosis.Repository
}

func NewService(client ai.Client, repo diagnosis.Repository) *Service {
	return &Service{client: client, repo: repo}
}

// Diagnose runs the AI analysis without persisting anything.
func (s *Service) Diagnose(ctx context.Context, fileURL string) (string, error) {
	return s.client.Diagnose(ctx, fileURL)
}

// DiagnoseAndStore analyzes a run's log artifact and stores the result.
func (s *Service) DiagnoseAndStore(ctx context.Context, tenant, runID, fileURL string) (*diagnosis.Diagnosis, error) {
	result, err := s.client.Diagnose(ctx, fileURL)
	if err != nil {
		return nil, err
	}

	d := &diagnosis.Diagnosis{
		ID:        diagnosis.DiagnosisID(uuid.New().String()),
		TenantID:  tenant,
		RunID:     runID,
		FileURL:   fileURL,
		Result:    result,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDiagnoses returns a page of stored diagnoses ordered by recency.
func (s *Service) ListDiagnoses(ctx context.Context, tenant string, page, pageSize int) ([]*diagnosis.Diagnosis, error) {
	return s.repo.Paginate(ctx, tenant, page, pageSize)
}

// LatestForRun returns the most recent diagnosis for a run, or nil.
func (s *Service) LatestForRun(ctx context.Context, tenant, runID string) (*diagnosis.Diagnosis, error) {
	return s.repo.LatestByRun(ctx, tenant, runID)
}
