package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appai "github.com/bryanwahyu/automaton-ci/internal/application/ai"
	appruns "github.com/bryanwahyu/automaton-ci/internal/application/runs"
	domai "github.com/bryanwahyu/automaton-ci/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
	"github.com/bryanwahyu/automaton-ci/internal/middleware"
)

type Router struct {
	runsSvc *appruns.Service
	aiSvc   *appai.Service
}

func NewRouter(runsSvc *appruns.Service, aiSvc *appai.Service) http.Handler {
	r := &Router{runsSvc: runsSvc, aiSvc: aiSvc}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/webhook/pipeline", r.wrap(r.handleTriggerRun))
		rt.Get("/runs/latest", r.wrap(r.handleLatest))
		rt.Get("/runs/{id}", r.wrap(r.handleGet))
		rt.Post("/runs/{id}/retry", r.wrap(r.handleRetry))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Post("/ai/diagnose", r.wrap(r.handleDiagnose))
		rt.Get("/ai/diagnose", r.wrap(r.handleDiagnoseList))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, domai.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/{tenant}/webhook/pipeline
// Body mirrors a source-control push event. The run executes in the
// background; the response confirms only that the run was queued.
func (r *Router) handleTriggerRun(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body struct {
		Pipeline  string `json:"pipeline"`
		Branch    string `json:"branch"`
		CommitSHA string `json:"commit_sha"`
		Source    string `json:"source"`
		Metadata  any    `json:"metadata"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if err := middleware.ValidateBranch(body.Branch); err != nil {
		return err
	}
	if err := middleware.ValidateCommitSHA(body.CommitSHA); err != nil {
		return err
	}

	cmd := appruns.TriggerRunCommand{
		TenantID:  tenant,
		Pipeline:  body.Pipeline,
		Branch:    body.Branch,
		CommitSHA: body.CommitSHA,
		Source:    body.Source,
		Metadata:  body.Metadata,
	}

	// Jalankan di background, biar jalan sampai selesai
	go func() {
		middleware.IncrementRuns()
		middleware.IncrementRunsRunning()
		defer middleware.DecrementRunsRunning()

		result, err := r.runsSvc.TriggerRunUntilDone(cmd)
		if err != nil {
			middleware.IncrementRunsFailed()
			fmt.Printf("background run error for tenant=%s pipeline=%s: %v\n",
				tenant, body.Pipeline, err)
			return
		}
		if result.Status == string(domain.StatusFailed) {
			middleware.IncrementRunsFailed()
		}
		fmt.Printf("run finished: tenant=%s pipeline=%s status=%s\n",
			tenant, body.Pipeline, result.Status)
	}()

	// langsung balikin respons ke client
	resp := map[string]any{
		"status":   "queued",
		"tenant":   tenant,
		"pipeline": body.Pipeline,
		"branch":   body.Branch,
		"commit":   body.CommitSHA,
		"message":  "pipeline run started in background",
		"queuedAt": time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// GET /v1/{tenant}/runs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.runsSvc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/runs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	run, err := r.runsSvc.Get(req.Context(), tenant, domain.RunID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(run)
}

// POST /v1/{tenant}/runs/{id}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	go func() {
		middleware.IncrementRuns()
		middleware.IncrementRunsRunning()
		defer middleware.DecrementRunsRunning()

		result, err := r.runsSvc.RetryRun(context.Background(), tenant, domain.RunID(id))
		if err != nil {
			middleware.IncrementRunsFailed()
			fmt.Printf("retry error for tenant=%s run=%s: %v\n", tenant, id, err)
			return
		}
		if result.Status == string(domain.StatusFailed) {
			middleware.IncrementRunsFailed()
		}
		fmt.Printf("retry finished: tenant=%s run=%s status=%s\n", tenant, id, result.Status)
	}()

	resp := map[string]any{
		"status":   "queued",
		"tenant":   tenant,
		"run_id":   id,
		"message":  "retry started in background",
		"queuedAt": time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.runsSvc.Summary(req.Context(), tenant, middleware.ValidateDays(days))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(summary)
}

// POST /v1/{tenant}/ai/diagnose
// Body: {"run_id": "<id>"}
// The server fetches the run's failing stage artifact and runs AI diagnosis on it.
func (r *Router) handleDiagnose(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	run, err := r.runsSvc.Get(req.Context(), tenant, domain.RunID(body.RunID))
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", body.RunID)
	}
	fileURL := failingArtifact(run)
	if fileURL == "" {
		return fmt.Errorf("no artifact found for run_id: %s", body.RunID)
	}

	d, err := r.aiSvc.DiagnoseAndStore(req.Context(), tenant, body.RunID, fileURL)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(d)
}

// GET /v1/{tenant}/ai/diagnose?page=&page_size=
func (r *Router) handleDiagnoseList(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.ListDiagnoses(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// failingArtifact picks the artifact of the first failed stage, falling
// back to the last stage that produced one.
func failingArtifact(run *domain.Run) string {
	var last string
	for _, st := range run.Stages {
		if st.ArtifactURL == "" {
			continue
		}
		if st.Status == domain.StatusFailed || st.Status == domain.StatusError {
			return st.ArtifactURL
		}
		last = st.ArtifactURL
	}
	return last
}
