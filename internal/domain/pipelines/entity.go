package pipelines

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind enum for stage kinds
type Kind string

const (
	KindTest   Kind = "test"
	KindBuild  Kind = "build"
	KindScan   Kind = "scan"
	KindPush   Kind = "push"
	KindDeploy Kind = "deploy"
)

// Pipeline is the parsed definition of a delivery pipeline.
type Pipeline struct {
	Name   string  `yaml:"name"`
	Stages []Stage `yaml:"stages"`
}

// Stage is one unit of work in the pipeline. Stages run in dependency
// order; a stage with an empty Only list runs on every branch.
type Stage struct {
	Name      string   `yaml:"name"`
	Kind      Kind     `yaml:"kind"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Only      []string `yaml:"only,omitempty"`

	// SoftFail marks a stage whose failure is recorded but never
	// fails the run (used for the vulnerability scan stage).
	SoftFail bool `yaml:"soft_fail,omitempty"`

	Test   *TestParams   `yaml:"test,omitempty"`
	Build  *BuildParams  `yaml:"build,omitempty"`
	Scan   *ScanParams   `yaml:"scan,omitempty"`
	Push   *PushParams   `yaml:"push,omitempty"`
	Deploy *DeployParams `yaml:"deploy,omitempty"`
}

// TestParams configures a test stage: run Command inside Image with the
// build context mounted, collecting a coverage report.
type TestParams struct {
	Image        string   `yaml:"image"`
	Context      string   `yaml:"context"`
	Command      []string `yaml:"command"`
	CoverageFile string   `yaml:"coverage_file,omitempty"`
}

// BuildParams configures an image build stage.
type BuildParams struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`

	// Recipe policy enforced before the build runs.
	RequirePort    int    `yaml:"require_port,omitempty"`
	RequireVolume  string `yaml:"require_volume,omitempty"`
	RequireNonRoot bool   `yaml:"require_non_root,omitempty"`
}

// ScanParams configures a vulnerability scan stage.
type ScanParams struct {
	Severity string `yaml:"severity,omitempty"` // e.g. "HIGH,CRITICAL"
}

// PushParams configures a registry push stage.
type PushParams struct {
	Tags []string `yaml:"tags,omitempty"` // defaults to latest + commit sha
}

// DeployParams configures a deployment webhook stage.
type DeployParams struct {
	Force bool `yaml:"force,omitempty"`
}

// Load reads and validates a pipeline definition file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse unmarshals and validates a pipeline definition.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural invariants: non-empty name, at least one
// stage, unique stage names, known kinds, and dependencies that refer to
// declared stages.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %q has no stages", p.Name)
	}

	known := map[Kind]bool{
		KindTest: true, KindBuild: true, KindScan: true,
		KindPush: true, KindDeploy: true,
	}

	seen := make(map[string]bool, len(p.Stages))
	for _, st := range p.Stages {
		if st.Name == "" {
			return fmt.Errorf("pipeline %q: stage with empty name", p.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("pipeline %q: duplicate stage %q", p.Name, st.Name)
		}
		seen[st.Name] = true
		if !known[st.Kind] {
			return fmt.Errorf("stage %q: unknown kind %q", st.Name, st.Kind)
		}
	}
	for _, st := range p.Stages {
		for _, dep := range st.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("stage %q depends on unknown stage %q", st.Name, dep)
			}
			if dep == st.Name {
				return fmt.Errorf("stage %q depends on itself", st.Name)
			}
		}
	}
	return nil
}

// Stage returns the stage with the given name, or nil.
func (p *Pipeline) Stage(name string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}

// Gated reports whether the stage may run on the given branch.
// An empty Only list matches every branch.
func (s *Stage) Gated(branch string) bool {
	if len(s.Only) == 0 {
		return true
	}
	for _, b := range s.Only {
		if b == branch {
			return true
		}
	}
	return false
}
