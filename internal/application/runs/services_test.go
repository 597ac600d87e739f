package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"
	"github.com/bryanwahyu/automaton-ci/internal/domain/runerrors"
	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

//
// ==== fakes ====
//

type fakeRepo struct {
	saved  []*domain.Run
	byID   map[domain.RunID]*domain.Run
	status []domain.Status
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[domain.RunID]*domain.Run)}
}

func (f *fakeRepo) Save(_ context.Context, r *domain.Run) error {
	cp := *r
	f.saved = append(f.saved, &cp)
	f.byID[r.ID] = &cp
	return nil
}

func (f *fakeRepo) Get(_ context.Context, _ string, id domain.RunID) (*domain.Run, error) {
	return f.byID[id], nil
}

func (f *fakeRepo) Latest(_ context.Context, _ string, _ int) ([]*domain.Run, error) {
	return f.saved, nil
}

func (f *fakeRepo) Summary(_ context.Context, _ string, _ int) (int, int, int, int, error) {
	return len(f.byID), 0, 0, 0, nil
}

func (f *fakeRepo) Paginate(_ context.Context, _ string, _, _ int) ([]*domain.Run, error) {
	return f.saved, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, _ string, _ domain.RunID, s domain.Status) error {
	f.status = append(f.status, s)
	return nil
}

type fakeRunner struct {
	outcomes map[string]domain.StageOutcome
	errs     map[string]error
	calls    []string
}

func (f *fakeRunner) Run(_ context.Context, req domain.StageRequest) (domain.StageOutcome, error) {
	f.calls = append(f.calls, req.Stage.Name)
	if err := f.errs[req.Stage.Name]; err != nil {
		return domain.StageOutcome{}, err
	}
	return f.outcomes[req.Stage.Name], nil
}

type fakeStore struct{ keys []string }

func (f *fakeStore) Upload(_ context.Context, _, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "http://minio.local/artifacts/" + key, nil
}

func (f *fakeStore) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	return f.Upload(ctx, localPath, key)
}

type fakeDeployer struct {
	calls int
	force bool
	err   error
}

func (f *fakeDeployer) Trigger(_ context.Context, force bool) error {
	f.calls++
	f.force = force
	return f.err
}

type fakeQuality struct {
	reports []string
	url     string
	err     error
}

func (f *fakeQuality) Submit(_ context.Context, reportPath, _, _ string) (string, error) {
	f.reports = append(f.reports, reportPath)
	return f.url, f.err
}

type fakeErrors struct{ entries []*runerrors.RunError }

func (f *fakeErrors) Save(_ context.Context, e *runerrors.RunError) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeErrors) ListByRun(_ context.Context, _, _ string, _ int) ([]*runerrors.RunError, error) {
	return f.entries, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

//
// ==== helpers ====
//

func deliveryPipeline(t *testing.T) *pipelines.Pipeline {
	t.Helper()
	p := &pipelines.Pipeline{
		Name: "nasa-apod",
		Stages: []pipelines.Stage{
			{Name: "test", Kind: pipelines.KindTest, Test: &pipelines.TestParams{Image: "python:3.11-slim", Context: "."}},
			{Name: "build", Kind: pipelines.KindBuild, DependsOn: []string{"test"}, Build: &pipelines.BuildParams{Context: ".", Dockerfile: "Dockerfile"}},
			{Name: "scan", Kind: pipelines.KindScan, DependsOn: []string{"build"}, SoftFail: true},
			{Name: "deploy_image", Kind: pipelines.KindPush, DependsOn: []string{"scan"}, Only: []string{"main"}},
			{Name: "deploy_service", Kind: pipelines.KindDeploy, DependsOn: []string{"deploy_image"}, Only: []string{"main"}},
		},
	}
	require.NoError(t, p.Validate())
	return p
}

func newService(t *testing.T, runner *fakeRunner) (*Service, *fakeRepo, *fakeDeployer, *fakeQuality, *fakeErrors) {
	t.Helper()
	repo := newFakeRepo()
	deployer := &fakeDeployer{}
	quality := &fakeQuality{url: "https://quality.local/report/1"}
	errRepo := &fakeErrors{}
	svc := &Service{
		Repo:        repo,
		Runner:      runner,
		Artifacts:   &fakeStore{},
		Deployer:    deployer,
		Quality:     quality,
		Errors:      errRepo,
		Clock:       fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Definitions: map[string]*pipelines.Pipeline{"nasa-apod": deliveryPipeline(t)},
	}
	return svc, repo, deployer, quality, errRepo
}

func greenRunner() *fakeRunner {
	return &fakeRunner{
		outcomes: map[string]domain.StageOutcome{
			"test":         {LocalArtifactPath: "temp/cov/coverage.xml", RawFormat: "xml"},
			"build":        {LocalArtifactPath: "temp/build.log", RawFormat: "log"},
			"scan":         {LocalArtifactPath: "temp/scan.json", RawFormat: "json", Counts: domain.SeverityCounts{High: 2, Total: 2}},
			"deploy_image": {LocalArtifactPath: "temp/push.log", RawFormat: "log"},
		},
		errs: map[string]error{},
	}
}

func stageByName(t *testing.T, run *domain.Run, name string) domain.StageResult {
	t.Helper()
	for _, st := range run.Stages {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("stage %q not found", name)
	return domain.StageResult{}
}

//
// ==== tests ====
//

func TestTriggerRunMainBranch(t *testing.T) {
	runner := greenRunner()
	svc, repo, deployer, quality, _ := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID:  "acme",
		Pipeline:  "nasa-apod",
		Branch:    "main",
		CommitSHA: "a1b2c3d4e5f6a7b8",
		Source:    "push",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusSuccess), res.Status)
	assert.Equal(t, []string{"test", "build", "scan", "deploy_image"}, runner.calls)
	assert.Equal(t, 1, deployer.calls)
	assert.Equal(t, []string{"temp/cov/coverage.xml"}, quality.reports)

	// initial queued row + final row
	require.Len(t, repo.saved, 2)
	final := repo.saved[1]
	assert.Equal(t, domain.StatusSuccess, final.Status)
	require.Len(t, final.Stages, 5)
	assert.Equal(t, domain.SeverityCounts{High: 2, Total: 2}, final.Counts)

	test := stageByName(t, final, "test")
	assert.Equal(t, domain.StatusSuccess, test.Status)
	assert.Equal(t, "https://quality.local/report/1", test.Message)
	assert.Contains(t, test.ArtifactURL, "coverage.xml")

	deploy := stageByName(t, final, "deploy_service")
	assert.Equal(t, domain.StatusSuccess, deploy.Status)
	assert.Empty(t, deploy.ArtifactURL)
}

func TestTriggerRunFeatureBranchSkipsDeploy(t *testing.T) {
	runner := greenRunner()
	svc, repo, deployer, _, _ := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme",
		Pipeline: "nasa-apod",
		Branch:   "feature/dark-mode",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusSuccess), res.Status)
	// push and deploy never execute off main
	assert.Equal(t, []string{"test", "build", "scan"}, runner.calls)
	assert.Zero(t, deployer.calls)

	final := repo.saved[len(repo.saved)-1]
	assert.Equal(t, domain.StatusSkipped, stageByName(t, final, "deploy_image").Status)

	// deploy_service is skipped transitively through its skipped dependency
	ds := stageByName(t, final, "deploy_service")
	assert.Equal(t, domain.StatusSkipped, ds.Status)
	assert.Equal(t, "dependency was skipped", ds.Message)
}

func TestTriggerRunSoftFailScanDoesNotAbort(t *testing.T) {
	runner := greenRunner()
	runner.outcomes["scan"] = domain.StageOutcome{
		LocalArtifactPath: "temp/scan.json",
		ExitCode:          1,
		Counts:            domain.SeverityCounts{Critical: 1, Total: 1},
	}
	svc, repo, deployer, _, _ := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main",
	})
	require.NoError(t, err)

	// findings are recorded but the run still deploys
	assert.Equal(t, string(domain.StatusSuccess), res.Status)
	assert.Equal(t, 1, deployer.calls)

	final := repo.saved[len(repo.saved)-1]
	assert.Equal(t, domain.StatusFailed, stageByName(t, final, "scan").Status)
	assert.Equal(t, domain.StatusSuccess, stageByName(t, final, "deploy_image").Status)
	assert.Equal(t, 1, final.Counts.Critical)
}

func TestTriggerRunAbortsAfterFailure(t *testing.T) {
	runner := greenRunner()
	runner.outcomes["test"] = domain.StageOutcome{ExitCode: 2, LocalArtifactPath: "temp/cov/coverage.xml"}
	svc, repo, deployer, quality, _ := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusFailed), res.Status)
	assert.Equal(t, []string{"test"}, runner.calls)
	assert.Zero(t, deployer.calls)
	// failed test suites report nothing to the quality gate
	assert.Empty(t, quality.reports)

	final := repo.saved[len(repo.saved)-1]
	assert.Equal(t, domain.StatusFailed, stageByName(t, final, "test").Status)
	for _, name := range []string{"build", "scan", "deploy_image", "deploy_service"} {
		st := stageByName(t, final, name)
		assert.Equal(t, domain.StatusSkipped, st.Status, name)
		assert.Equal(t, "earlier stage failed", st.Message, name)
	}
}

func TestTriggerRunRunnerErrorIsRecorded(t *testing.T) {
	runner := greenRunner()
	runner.errs["build"] = errors.New("docker daemon unreachable")
	svc, _, _, _, errRepo := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusFailed), res.Status)
	require.NotEmpty(t, errRepo.entries)
	assert.Equal(t, "build", errRepo.entries[0].Stage)
	assert.Contains(t, errRepo.entries[0].Message, "docker daemon unreachable")
}

func TestTriggerRunQualityGateFailure(t *testing.T) {
	runner := greenRunner()
	svc, repo, deployer, quality, _ := newService(t, runner)
	quality.err = errors.New("quality service returned 503")

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusFailed), res.Status)
	assert.Zero(t, deployer.calls)

	final := repo.saved[len(repo.saved)-1]
	test := stageByName(t, final, "test")
	assert.Equal(t, domain.StatusFailed, test.Status)
	assert.Contains(t, test.Message, "503")
}

func TestTriggerRunDeployFailure(t *testing.T) {
	runner := greenRunner()
	svc, repo, deployer, _, errRepo := newService(t, runner)
	deployer.err = errors.New("deploy webhook returned 502: bad gateway")

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusFailed), res.Status)
	final := repo.saved[len(repo.saved)-1]
	assert.Equal(t, domain.StatusFailed, stageByName(t, final, "deploy_service").Status)
	require.NotEmpty(t, errRepo.entries)
	assert.Equal(t, "deploy_service", errRepo.entries[0].Stage)
}

func TestTriggerRunDefaultPipeline(t *testing.T) {
	runner := greenRunner()
	svc, _, _, _, _ := newService(t, runner)

	// single registered definition: empty name resolves to it
	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Branch: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusSuccess), res.Status)
}

func TestTriggerRunUnknownPipeline(t *testing.T) {
	svc, _, _, _, _ := newService(t, greenRunner())

	_, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "other", Branch: "main",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline")
}

func TestRetryRun(t *testing.T) {
	runner := greenRunner()
	svc, repo, deployer, _, _ := newService(t, runner)

	res, err := svc.TriggerRun(context.Background(), TriggerRunCommand{
		TenantID: "acme", Pipeline: "nasa-apod", Branch: "main", CommitSHA: "deadbeefcafe",
	})
	require.NoError(t, err)

	runner.calls = nil
	retried, err := svc.RetryRun(context.Background(), "acme", domain.RunID(res.ID))
	require.NoError(t, err)

	assert.Equal(t, res.ID, retried.ID)
	assert.Equal(t, string(domain.StatusSuccess), retried.Status)
	assert.Equal(t, []string{"test", "build", "scan", "deploy_image"}, runner.calls)
	assert.Equal(t, 2, deployer.calls)
	assert.Contains(t, repo.status, domain.StatusRunning)
}

func TestRetryRunNotFound(t *testing.T) {
	svc, _, _, _, _ := newService(t, greenRunner())

	_, err := svc.RetryRun(context.Background(), "acme", "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}
