package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

const sampleReport = `{
  "SchemaVersion": 2,
  "ArtifactName": "registry.example.com/acme/nasa-apod:latest",
  "Results": [
    {
      "Target": "registry.example.com/acme/nasa-apod:latest (debian 12.5)",
      "Vulnerabilities": [
        {"VulnerabilityID": "CVE-2024-0001", "Severity": "CRITICAL"},
        {"VulnerabilityID": "CVE-2024-0002", "Severity": "HIGH"},
        {"VulnerabilityID": "CVE-2024-0003", "Severity": "high"},
        {"VulnerabilityID": "CVE-2024-0004", "Severity": "Medium"},
        {"VulnerabilityID": "CVE-2024-0005", "Severity": "LOW"},
        {"VulnerabilityID": "CVE-2024-0006", "Severity": "UNKNOWN"}
      ]
    },
    {
      "Target": "app/requirements.txt",
      "Vulnerabilities": [
        {"VulnerabilityID": "CVE-2024-0007", "Severity": "HIGH"}
      ]
    }
  ]
}`

func TestCountFindings(t *testing.T) {
	counts, err := countFindings([]byte(sampleReport))
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Critical)
	assert.Equal(t, 3, counts.High)
	assert.Equal(t, 1, counts.Medium)
	assert.Equal(t, 1, counts.Low)
	// unknown severities still count toward the total
	assert.Equal(t, 7, counts.Total)
}

func TestCountFindingsEmptyResults(t *testing.T) {
	counts, err := countFindings([]byte(`{"SchemaVersion": 2, "Results": []}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCounts{}, counts)
}

func TestCountFindingsInvalidJSON(t *testing.T) {
	_, err := countFindings([]byte("not-json"))
	require.Error(t, err)
}

func TestCountFindingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trivy.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))

	counts, err := countFindingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, counts.Total)

	_, err = countFindingsFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
