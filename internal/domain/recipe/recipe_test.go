package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDockerfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Dockerfile")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFileMultiStage(t *testing.T) {
	path := writeDockerfile(t, `
# builder stage
FROM python:3.11 AS builder
EXPOSE 9999
RUN pip install build

FROM python:3.11-slim
ENV PYTHONUNBUFFERED=1
EXPOSE 8000/tcp
VOLUME ["/app/data"]
USER appuser
CMD ["uvicorn", "main:app"]
`)

	facts, err := ParseFile(path)
	require.NoError(t, err)

	// builder-stage EXPOSE must not leak into the final stage's facts
	assert.Equal(t, []int{8000}, facts.Ports)
	assert.Equal(t, []string{"/app/data"}, facts.Volumes)
	assert.Equal(t, "appuser", facts.User)
}

func TestParseFileVolumeShellForm(t *testing.T) {
	path := writeDockerfile(t, `
FROM alpine
VOLUME /app/data /var/cache
USER 1000:1000
`)

	facts, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/data", "/var/cache"}, facts.Volumes)
	assert.Equal(t, "1000:1000", facts.User)
}

func TestCheck(t *testing.T) {
	policy := Policy{RequirePort: 8000, RequireVolume: "/app/data", RequireNonRoot: true}

	ok := Facts{Ports: []int{8000}, Volumes: []string{"/app/data"}, User: "appuser"}
	assert.NoError(t, Check(ok, policy))

	tests := []struct {
		name  string
		facts Facts
		want  string
	}{
		{"missing port", Facts{Volumes: []string{"/app/data"}, User: "appuser"}, "port 8000"},
		{"missing volume", Facts{Ports: []int{8000}, User: "appuser"}, "volume /app/data"},
		{"no user", Facts{Ports: []int{8000}, Volumes: []string{"/app/data"}}, "runtime user"},
		{"root user", Facts{Ports: []int{8000}, Volumes: []string{"/app/data"}, User: "root"}, "runs as root"},
		{"uid zero", Facts{Ports: []int{8000}, Volumes: []string{"/app/data"}, User: "0"}, "runs as root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.facts, policy)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckReportsAllViolations(t *testing.T) {
	err := Check(Facts{}, Policy{RequirePort: 8000, RequireVolume: "/app/data", RequireNonRoot: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 8000")
	assert.Contains(t, err.Error(), "volume /app/data")
	assert.Contains(t, err.Error(), "runtime user")
}

func TestCheckEmptyPolicy(t *testing.T) {
	// nothing required, nothing to violate
	assert.NoError(t, Check(Facts{}, Policy{}))
}
