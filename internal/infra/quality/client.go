package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client submits coverage reports to the code-quality service.
type Client struct {
	http     *http.Client
	endpoint string
	token    string
}

func New(endpoint, token string) *Client {
	return &Client{
		http:     &http.Client{Timeout: 60 * time.Second},
		endpoint: endpoint,
		token:    token,
	}
}

// Submit uploads the coverage report for a commit. The returned URL points
// at the service's report page when the response provides one.
func (c *Client) Submit(ctx context.Context, reportPath, commitSHA, branch string) (string, error) {
	f, err := os.Open(reportPath)
	if err != nil {
		return "", fmt.Errorf("open coverage report: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("report", filepath.Base(reportPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	_ = mw.WriteField("commit_sha", commitSHA)
	_ = mw.WriteField("branch", branch)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit coverage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("quality service returned %d: %s", resp.StatusCode, string(body))
	}

	// report URL is optional in the response
	var out struct {
		ReportURL string `json:"report_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil
	}
	return out.ReportURL, nil
}
