package docker

import (
	"encoding/json"
	"os"
	"strings"

	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
)

// Subset of the trivy JSON report schema, just enough to count findings.
type trivyReport struct {
	Results []trivyResult `json:",omitempty"`
}

type trivyResult struct {
	Target          string               `json:",omitempty"`
	Vulnerabilities []trivyVulnerability `json:",omitempty"`
}

type trivyVulnerability struct {
	VulnerabilityID string `json:",omitempty"`
	Severity        string `json:",omitempty"`
}

// countFindings tallies severities across all results in a trivy report.
func countFindings(data []byte) (domain.SeverityCounts, error) {
	var report trivyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.SeverityCounts{}, err
	}

	var counts domain.SeverityCounts
	for _, res := range report.Results {
		for _, v := range res.Vulnerabilities {
			switch strings.ToUpper(v.Severity) {
			case "CRITICAL":
				counts.Critical++
			case "HIGH":
				counts.High++
			case "MEDIUM":
				counts.Medium++
			case "LOW":
				counts.Low++
			}
			counts.Total++
		}
	}
	return counts, nil
}

func countFindingsFile(path string) (domain.SeverityCounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SeverityCounts{}, err
	}
	return countFindings(data)
}
