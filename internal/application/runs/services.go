package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"
	"github.com/bryanwahyu/automaton-ci/internal/domain/runerrors"
	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

// Service implements use-cases untuk pipeline Run
// Service is designed to be used concurrently and is thread-safe
type Service struct {
	Repo      domain.Repository
	Runner    domain.StageRunner
	Artifacts domain.ArtifactStore
	Deployer  domain.Deployer
	Quality   domain.QualityGate
	Errors    runerrors.Repository
	Clock     Clock

	// Definitions maps pipeline name to its parsed definition.
	Definitions map[string]*pipelines.Pipeline
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

//
// ==== USE CASES ====
//

// Command untuk trigger run (dari push event webhook)
type TriggerRunCommand struct {
	TenantID  string
	Pipeline  string
	Branch    string
	CommitSHA string
	Source    string
	Metadata  any
}

type TriggerRunResult struct {
	ID         string                `json:"id"`
	Status     string                `json:"status"`
	Counts     domain.SeverityCounts `json:"counts"`
	Stages     []domain.StageResult  `json:"stages"`
	DurationMS int64                 `json:"duration_ms"`
}

// TriggerRunUntilDone → jalanin run dengan context.Background()
// cocok dipanggil dari goroutine di router supaya gak kena context canceled
func (s *Service) TriggerRunUntilDone(cmd TriggerRunCommand) (TriggerRunResult, error) {
	return s.TriggerRun(context.Background(), cmd)
}

// TriggerRun resolves the pipeline's stage order and executes it:
// gate check → stage runner → artifact upload → persist results.
// A failing stage aborts everything after it unless marked soft_fail;
// a stage gated out by branch is skipped along with its dependents.
func (s *Service) TriggerRun(ctx context.Context, cmd TriggerRunCommand) (TriggerRunResult, error) {
	def, err := s.definition(cmd.Pipeline)
	if err != nil {
		return TriggerRunResult{}, err
	}

	now := s.Clock.Now()
	id := fmt.Sprintf("%s-%s", uuid.New().String(), def.Name)

	// Create an initial run row so we always have an ID to reference
	initial := &domain.Run{
		ID:          domain.RunID(id),
		TenantID:    cmd.TenantID,
		Pipeline:    def.Name,
		Branch:      cmd.Branch,
		CommitSHA:   cmd.CommitSHA,
		Source:      cmd.Source,
		TriggeredAt: now,
		Status:      domain.StatusRunning,
		Metadata:    cmd.Metadata,
	}
	if err := s.Repo.Save(ctx, initial); err != nil {
		return TriggerRunResult{ID: id, Status: string(domain.StatusError)}, err
	}

	return s.execute(ctx, initial, cmd.TenantID, "trigger")
}

// RetryRun: jalankan ulang run yang sudah ada (biasanya yang status failed/error)
func (s *Service) RetryRun(ctx context.Context, tenant string, id domain.RunID) (TriggerRunResult, error) {
	existing, err := s.Repo.Get(ctx, tenant, id)
	if err != nil {
		return TriggerRunResult{}, err
	}
	if existing == nil {
		return TriggerRunResult{}, fmt.Errorf("run not found: %s", id)
	}

	_ = s.Repo.UpdateStatus(context.Background(), tenant, id, domain.StatusRunning)

	existing.Stages = nil
	existing.Counts = domain.SeverityCounts{}
	existing.Status = domain.StatusRunning
	return s.execute(ctx, existing, tenant, "retry")
}

// execute runs every stage in dependency order and persists the outcome.
func (s *Service) execute(ctx context.Context, run *domain.Run, tenant, phase string) (TriggerRunResult, error) {
	def, err := s.definition(run.Pipeline)
	if err != nil {
		return TriggerRunResult{ID: string(run.ID), Status: string(domain.StatusError)}, err
	}

	order, err := def.ExecutionOrder()
	if err != nil {
		s.recordError(tenant, string(run.ID), "", phase, err)
		_ = s.Repo.UpdateStatus(context.Background(), tenant, run.ID, domain.StatusError)
		return TriggerRunResult{ID: string(run.ID), Status: string(domain.StatusError)}, err
	}

	start := s.Clock.Now()
	skipped := make(map[string]bool)
	aborted := false
	var agg domain.SeverityCounts
	results := make([]domain.StageResult, 0, len(order))

	for _, st := range order {
		res := domain.StageResult{Name: st.Name, Kind: st.Kind}

		switch {
		case aborted:
			res.Status = domain.StatusSkipped
			res.Message = "earlier stage failed"
			skipped[st.Name] = true
		case dependsOnSkipped(st, skipped):
			res.Status = domain.StatusSkipped
			res.Message = "dependency was skipped"
			skipped[st.Name] = true
		case !st.Gated(run.Branch):
			res.Status = domain.StatusSkipped
			res.Message = fmt.Sprintf("branch %q not in stage gate", run.Branch)
			skipped[st.Name] = true
		default:
			res = s.executeStage(ctx, run, st, tenant, phase)
			if (res.Status == domain.StatusFailed || res.Status == domain.StatusError) && !st.SoftFail {
				aborted = true
			}
		}

		agg.Add(res.Counts)
		results = append(results, res)
	}

	run.Stages = results
	run.Counts = agg
	run.DurationMS = s.Clock.Now().Sub(start).Milliseconds()
	if aborted {
		run.Status = domain.StatusFailed
	} else {
		run.Status = domain.StatusSuccess
	}

	if err := s.Repo.Save(ctx, run); err != nil {
		return TriggerRunResult{ID: string(run.ID), Status: string(run.Status)}, err
	}

	return TriggerRunResult{
		ID:         string(run.ID),
		Status:     string(run.Status),
		Counts:     run.Counts,
		Stages:     run.Stages,
		DurationMS: run.DurationMS,
	}, nil
}

// executeStage runs a single stage and uploads whatever artifact it produced.
func (s *Service) executeStage(ctx context.Context, run *domain.Run, st pipelines.Stage, tenant, phase string) domain.StageResult {
	res := domain.StageResult{Name: st.Name, Kind: st.Kind}

	// deploy stages only issue the webhook; nothing runs locally
	if st.Kind == pipelines.KindDeploy {
		start := s.Clock.Now()
		force := st.Deploy != nil && st.Deploy.Force
		err := s.Deployer.Trigger(ctx, force)
		res.DurationMS = s.Clock.Now().Sub(start).Milliseconds()
		if err != nil {
			s.recordError(tenant, string(run.ID), st.Name, phase, err)
			res.Status = domain.StatusFailed
			res.Message = err.Error()
			return res
		}
		res.Status = domain.StatusSuccess
		return res
	}

	out, err := s.Runner.Run(ctx, domain.StageRequest{
		RunID:     string(run.ID),
		Stage:     st,
		Branch:    run.Branch,
		CommitSHA: run.CommitSHA,
	})
	if err != nil {
		s.recordError(tenant, string(run.ID), st.Name, phase, err)
		res.Status = domain.StatusError
		res.Message = err.Error()
		return res
	}

	res.ExitCode = out.ExitCode
	res.DurationMS = out.DurationMS
	res.Counts = out.Counts
	res.Status = statusFromExit(out.ExitCode)

	// test stages report coverage to the quality gate before the
	// local report file is uploaded and removed
	if st.Kind == pipelines.KindTest && out.ExitCode == 0 && s.Quality != nil && out.LocalArtifactPath != "" {
		if reportURL, qerr := s.Quality.Submit(ctx, out.LocalArtifactPath, run.CommitSHA, run.Branch); qerr != nil {
			s.recordError(tenant, string(run.ID), st.Name, phase, qerr)
			res.Status = domain.StatusFailed
			res.Message = qerr.Error()
		} else if reportURL != "" {
			res.Message = reportURL
		}
	}

	if out.LocalArtifactPath != "" {
		key := fmt.Sprintf("%s/%s/%s", tenant, run.ID, filepath.Base(out.LocalArtifactPath))
		url, uerr := s.Artifacts.UploadAndCleanup(ctx, out.LocalArtifactPath, key)
		if uerr != nil {
			// Clean up the temporary file even if upload fails
			os.Remove(out.LocalArtifactPath)
			s.recordError(tenant, string(run.ID), st.Name, phase, uerr)
			res.Status = domain.StatusError
			res.Message = uerr.Error()
			return res
		}
		res.ArtifactURL = url
	}

	return res
}

// Latest ambil N run terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Run, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

// Get ambil 1 run by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.Run, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Summary rekap hasil run N hari terakhir
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (map[string]any, error) {
	total, critical, high, medium, err := s.Repo.Summary(ctx, tenant, sinceDays)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_runs": total,
		"critical":   critical,
		"high":       high,
		"medium":     medium,
	}, nil
}

// helpers

func (s *Service) definition(name string) (*pipelines.Pipeline, error) {
	if name == "" && len(s.Definitions) == 1 {
		for _, def := range s.Definitions {
			return def, nil
		}
	}
	if def, ok := s.Definitions[name]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("unknown pipeline: %q", name)
}

func (s *Service) recordError(tenant, runID, stage, phase string, err error) {
	if s.Errors == nil || err == nil {
		return
	}
	details, _ := json.Marshal(map[string]string{"error": err.Error()})
	_ = s.Errors.Save(context.Background(), &runerrors.RunError{
		TenantID:    tenant,
		RunID:       runID,
		Stage:       stage,
		Phase:       phase,
		Message:     err.Error(),
		DetailsJSON: string(details),
	})
}

func dependsOnSkipped(st pipelines.Stage, skipped map[string]bool) bool {
	for _, dep := range st.DependsOn {
		if skipped[dep] {
			return true
		}
	}
	return false
}

func statusFromExit(code int) domain.Status {
	if code == 0 {
		return domain.StatusSuccess
	}
	return domain.StatusFailed
}
