package quality

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<coverage line-rate="0.93"/>`), 0o644))
	return path
}

func TestSubmit(t *testing.T) {
	var auth, commit, branch, filename, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		commit = r.FormValue("commit_sha")
		branch = r.FormValue("branch")

		f, hdr, err := r.FormFile("report")
		require.NoError(t, err)
		defer f.Close()
		filename = hdr.Filename
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		body = string(data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"report_url": "https://quality.local/reports/42"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "quality-token")
	url, err := c.Submit(context.Background(), writeReport(t), "a1b2c3d4", "main")
	require.NoError(t, err)

	assert.Equal(t, "https://quality.local/reports/42", url)
	assert.Equal(t, "Bearer quality-token", auth)
	assert.Equal(t, "a1b2c3d4", commit)
	assert.Equal(t, "main", branch)
	assert.Equal(t, "coverage.xml", filename)
	assert.Contains(t, body, "line-rate")
}

func TestSubmitNoReportURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	url, err := c.Submit(context.Background(), writeReport(t), "a1b2c3d4", "main")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestSubmitNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad")
	_, err := c.Submit(context.Background(), writeReport(t), "a1b2c3d4", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSubmitMissingReport(t *testing.T) {
	c := New("http://quality.local", "tok")
	_, err := c.Submit(context.Background(), filepath.Join(t.TempDir(), "nope.xml"), "a1b2c3d4", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open coverage report")
}
