package docker

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"
	"github.com/bryanwahyu/automaton-ci/internal/domain/recipe"
	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

// RegistryRef identifies where built images are tagged and pushed.
type RegistryRef struct {
	Repository string // e.g. registry.example.com/team/nasa-apod
	Username   string
	Token      string
}

// Runner executes pipeline stages by shelling out to the docker CLI.
type Runner struct {
	randSource *rand.Rand
	registry   RegistryRef
}

func NewRunner(reg RegistryRef) *Runner {
	// Create a dedicated random source to avoid contention
	src := rand.NewSource(time.Now().UnixNano())
	return &Runner{
		randSource: rand.New(src),
		registry:   reg,
	}
}

func (r *Runner) Run(ctx context.Context, req domain.StageRequest) (domain.StageOutcome, error) {
	start := time.Now()

	// Use ./temp directory instead of system temp
	tempDir := filepath.Join(".", "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return domain.StageOutcome{}, err
	}
	base := fmt.Sprintf("%s-%d", req.Stage.Name, r.randSource.Int())

	var out domain.StageOutcome
	var err error
	switch req.Stage.Kind {
	case pipelines.KindTest:
		out, err = r.runTest(ctx, req, tempDir, base)
	case pipelines.KindBuild:
		out, err = r.runBuild(ctx, req, tempDir, base)
	case pipelines.KindScan:
		out, err = r.runScan(ctx, req, tempDir, base)
	case pipelines.KindPush:
		out, err = r.runPush(ctx, req, tempDir, base)
	default:
		return domain.StageOutcome{}, fmt.Errorf("unsupported stage kind: %s", req.Stage.Kind)
	}
	if err != nil {
		return domain.StageOutcome{}, err
	}

	out.DurationMS = time.Since(start).Milliseconds()
	return out, nil
}

// runTest executes the test suite inside a container with the build context
// mounted read-write and a per-stage output dir for the coverage report.
func (r *Runner) runTest(ctx context.Context, req domain.StageRequest, tempDir, base string) (domain.StageOutcome, error) {
	params := req.Stage.Test
	if params == nil || params.Image == "" {
		return domain.StageOutcome{}, fmt.Errorf("stage %q: test params are required", req.Stage.Name)
	}

	outDir := filepath.Join(tempDir, base)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.StageOutcome{}, err
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return domain.StageOutcome{}, err
	}
	absCtx, err := filepath.Abs(params.Context)
	if err != nil {
		return domain.StageOutcome{}, err
	}

	coverage := params.CoverageFile
	if coverage == "" {
		coverage = "coverage.xml"
	}

	args := []string{"run", "--rm",
		"-v", fmt.Sprintf("%s:/src", absCtx),
		"-v", fmt.Sprintf("%s:/out", absOut),
		"-w", "/src",
		params.Image,
	}
	args = append(args, params.Command...)
	cmd := exec.CommandContext(ctx, "docker", args...)

	exitCode, err := runCapture(cmd, filepath.Join(outDir, "test.log"))
	if err != nil {
		return domain.StageOutcome{}, err
	}

	return domain.StageOutcome{
		LocalArtifactPath: filepath.Join(outDir, coverage),
		RawFormat:         "xml",
		ExitCode:          exitCode,
	}, nil
}

// runBuild checks the recipe policy, then builds the image with both the
// latest tag and the commit tag. The build log is the stage artifact.
func (r *Runner) runBuild(ctx context.Context, req domain.StageRequest, tempDir, base string) (domain.StageOutcome, error) {
	params := req.Stage.Build
	if params == nil || params.Dockerfile == "" {
		return domain.StageOutcome{}, fmt.Errorf("stage %q: build params are required", req.Stage.Name)
	}

	// recipe preflight: refuse to build images that violate policy
	facts, err := recipe.ParseFile(params.Dockerfile)
	if err != nil {
		return domain.StageOutcome{}, fmt.Errorf("read recipe %s: %w", params.Dockerfile, err)
	}
	if err := recipe.Check(facts, recipe.Policy{
		RequirePort:    params.RequirePort,
		RequireVolume:  params.RequireVolume,
		RequireNonRoot: params.RequireNonRoot,
	}); err != nil {
		return domain.StageOutcome{}, err
	}

	buildCtx := params.Context
	if buildCtx == "" {
		buildCtx = "."
	}

	args := []string{"build", "-f", params.Dockerfile}
	for _, tag := range r.imageTags(req.CommitSHA, nil) {
		args = append(args, "-t", tag)
	}
	args = append(args, buildCtx)
	cmd := exec.CommandContext(ctx, "docker", args...)

	logPath := filepath.Join(tempDir, base+".log")
	exitCode, err := runCapture(cmd, logPath)
	if err != nil {
		return domain.StageOutcome{}, err
	}

	return domain.StageOutcome{
		LocalArtifactPath: logPath,
		RawFormat:         "log",
		ExitCode:          exitCode,
	}, nil
}

// runScan scans the commit-tagged image with trivy and parses the severity
// counts out of the JSON report.
func (r *Runner) runScan(ctx context.Context, req domain.StageRequest, tempDir, base string) (domain.StageOutcome, error) {
	severity := "HIGH,CRITICAL"
	if req.Stage.Scan != nil && req.Stage.Scan.Severity != "" {
		severity = req.Stage.Scan.Severity
	}

	artifactPath := filepath.Join(tempDir, base+".json")
	absDir, err := filepath.Abs(filepath.Dir(artifactPath))
	if err != nil {
		return domain.StageOutcome{}, err
	}

	cmd := exec.CommandContext(ctx, "docker", "run", "--rm",
		"-v", "/var/run/docker.sock:/var/run/docker.sock",
		"-v", fmt.Sprintf("%s:/out", absDir),
		"aquasec/trivy:latest",
		"image", "--scanners", "vuln",
		"--severity", severity,
		"--format", "json",
		"-o", "/out/"+filepath.Base(artifactPath),
		r.commitImage(req.CommitSHA),
	)

	out, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			return domain.StageOutcome{}, fmt.Errorf("run error: %v, output=%s", err, string(out))
		}
	}

	counts, perr := countFindingsFile(artifactPath)
	if perr != nil {
		// report missing or malformed: surface the scanner output
		return domain.StageOutcome{}, fmt.Errorf("parse scan report: %v, output=%s", perr, string(out))
	}

	return domain.StageOutcome{
		Counts:            counts,
		LocalArtifactPath: artifactPath,
		RawFormat:         "json",
		ExitCode:          exitCode,
	}, nil
}

// runPush logs in to the registry with the configured token and pushes
// every tag. The combined push log is the stage artifact.
func (r *Runner) runPush(ctx context.Context, req domain.StageRequest, tempDir, base string) (domain.StageOutcome, error) {
	if r.registry.Repository == "" {
		return domain.StageOutcome{}, fmt.Errorf("stage %q: registry repository is not configured", req.Stage.Name)
	}
	logPath := filepath.Join(tempDir, base+".log")

	if r.registry.Token != "" {
		login := exec.CommandContext(ctx, "docker", "login", registryHost(r.registry.Repository),
			"-u", r.registry.Username, "--password-stdin")
		login.Stdin = strings.NewReader(r.registry.Token)
		exitCode, err := runCapture(login, logPath)
		if err != nil {
			return domain.StageOutcome{}, err
		}
		if exitCode != 0 {
			return domain.StageOutcome{
				LocalArtifactPath: logPath,
				RawFormat:         "log",
				ExitCode:          exitCode,
			}, nil
		}
	}

	var extra []string
	if req.Stage.Push != nil {
		extra = req.Stage.Push.Tags
	}
	for _, tag := range r.imageTags(req.CommitSHA, extra) {
		cmd := exec.CommandContext(ctx, "docker", "push", tag)
		exitCode, err := runCapture(cmd, logPath)
		if err != nil {
			return domain.StageOutcome{}, err
		}
		if exitCode != 0 {
			return domain.StageOutcome{
				LocalArtifactPath: logPath,
				RawFormat:         "log",
				ExitCode:          exitCode,
			}, nil
		}
	}

	return domain.StageOutcome{
		LocalArtifactPath: logPath,
		RawFormat:         "log",
		ExitCode:          0,
	}, nil
}

// imageTags returns the full refs to tag/push: latest plus the commit sha,
// unless the stage overrides the tag list.
func (r *Runner) imageTags(commitSHA string, override []string) []string {
	tags := override
	if len(tags) == 0 {
		tags = []string{"latest"}
		if commitSHA != "" {
			tags = append(tags, commitSHA)
		}
	}
	refs := make([]string, 0, len(tags))
	for _, t := range tags {
		refs = append(refs, fmt.Sprintf("%s:%s", r.registry.Repository, t))
	}
	return refs
}

func (r *Runner) commitImage(commitSHA string) string {
	tag := commitSHA
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s:%s", r.registry.Repository, tag)
}

// registryHost extracts the registry hostname from a repository ref.
func registryHost(repository string) string {
	if i := strings.Index(repository, "/"); i > 0 {
		return repository[:i]
	}
	return repository
}

// runCapture runs the command, appending its combined output to logPath,
// and returns the exit code. Non-exit errors (docker missing, context
// canceled) are returned as errors.
func runCapture(cmd *exec.Cmd, logPath string) (int, error) {
	out, err := cmd.CombinedOutput()

	f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if ferr == nil {
		_, _ = f.Write(out)
		f.Close()
	}

	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return ee.ExitCode(), nil
		}
		return 0, fmt.Errorf("run error: %v, output=%s", err, string(out))
	}
	return 0, nil
}
