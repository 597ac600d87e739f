package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/automaton-ci/internal/application"
	appai "github.com/bryanwahyu/automaton-ci/internal/application/ai"
	appruns "github.com/bryanwahyu/automaton-ci/internal/application/runs"
	"github.com/bryanwahyu/automaton-ci/internal/config"
	"github.com/bryanwahyu/automaton-ci/internal/domain/diagnosis"
	"github.com/bryanwahyu/automaton-ci/internal/domain/pipelines"
	domainruns "github.com/bryanwahyu/automaton-ci/internal/domain/runs"
	aiopenai "github.com/bryanwahyu/automaton-ci/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/automaton-ci/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/automaton-ci/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-ci/internal/infra/deploy"
	dockerrunner "github.com/bryanwahyu/automaton-ci/internal/infra/executor/docker"
	"github.com/bryanwahyu/automaton-ci/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-ci/internal/infra/quality"
	minioStore "github.com/bryanwahyu/automaton-ci/internal/infra/storage"
	"github.com/bryanwahyu/automaton-ci/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database (driver switch)
	var db *sql.DB
	var repo domainruns.Repository
	var diagRepo diagnosis.Repository
	svc := &appruns.Service{Clock: application.SystemClock{}}

	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewRunRepository(db)
		diagRepo = postgresp.NewDiagnosisRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewRunRepository(db)
		diagRepo = mysqlp.NewDiagnosisRepository(db)
		svc.Errors = mysqlp.NewRunErrorRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// load pipeline definitions
	files := cfg.Pipelines.Files
	if len(files) == 0 {
		files = []string{"pipeline.yaml"}
	}
	defs := make(map[string]*pipelines.Pipeline, len(files))
	for _, f := range files {
		def, err := pipelines.Load(f)
		if err != nil {
			log.Fatalf("pipeline load error (%s): %v", f, err)
		}
		defs[def.Name] = def
	}

	// init stage runner + external clients
	runner := dockerrunner.NewRunner(dockerrunner.RegistryRef{
		Repository: cfg.Registry.Repository,
		Username:   cfg.Registry.Username,
		Token:      cfg.Registry.Token,
	})

	// init service
	svc.Repo = repo
	svc.Runner = runner
	svc.Artifacts = store
	svc.Deployer = deploy.New(cfg.Deploy.Endpoint, cfg.Deploy.ResourceUUID, cfg.Deploy.Token)
	svc.Definitions = defs
	if cfg.Quality.Endpoint != "" {
		svc.Quality = quality.New(cfg.Quality.Endpoint, cfg.Quality.Token)
	}

	aiSvc := appai.NewService(aiopenai.NewClient(cfg.AI.APIKey, cfg.AI.Model), diagRepo)

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(30, 10))
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Get("/healthz", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database":       &middleware.DatabaseHealthChecker{DB: db},
		"artifact_store": middleware.CheckerFunc(store.Check),
	}))
	mux.Mount("/", httpserver.NewRouter(svc, aiSvc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
