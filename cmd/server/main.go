package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/auth"
	"github.com/sat-prep/web/internal/config"
	"github.com/sat-prep/web/internal/dashboard"
	"github.com/sat-prep/web/internal/database"
	"github.com/sat-prep/web/internal/practice"
	"github.com/sat-prep/web/internal/questions"
	"github.com/sat-prep/web/internal/quiz"
	"github.com/sat-prep/web/internal/resume"
	"github.com/sat-prep/web/internal/tutor"
)

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load(*configDir)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resume store
	var store resume.Store
	if cfg.DBDriver == "memory" {
		store = resume.NewMemoryStore()
	} else {
		driver := database.Driver(cfg.DBDriver)
		db, err := database.Connect(ctx, driver, cfg.DBDSN)
		if err != nil {
			glog.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(db, driver); err != nil {
			glog.Fatalf("Failed to run migrations: %v", err)
		}
		store = resume.NewSQLStore(db)
	}

	// Remote API
	api := apiclient.NewClient(cfg.APIBaseURL,
		&http.Client{Timeout: cfg.HTTPTimeout},
		apiclient.WithRetry(cfg.SubmitRetries, cfg.RetryBaseDelay))

	// Quiz sessions
	departure, err := quiz.ParseDeparturePolicy(cfg.DeparturePolicy)
	if err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}
	history, err := quiz.ParseHistoryPolicy(cfg.HistoryPolicy)
	if err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}
	hub := practice.NewHub(32, cfg.CORSOrigins)
	sessions := quiz.NewRegistry(api, store, quiz.Options{
		Departure: departure,
		History:   history,
		Publisher: hub,
	})

	catalog, err := questions.LoadCatalog()
	if err != nil {
		glog.Fatalf("Failed to load subject catalog: %v", err)
	}

	llm, err := tutor.NewClient(cfg.TutorMode, cfg.AnthropicModel, cfg.AnthropicAPIKey, cfg.TutorCLIPath)
	if err != nil {
		glog.Fatalf("Failed to create tutor client: %v", err)
	}
	glog.Infof("Tutor mode: %s", cfg.TutorMode)

	secure := cfg.Production

	// Router
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("GET")

	auth.NewHandler(api, cfg.SessionMaxAge, secure).RegisterRoutes(r)
	dashboard.NewHandler(dashboard.NewService(api, store), secure).RegisterRoutes(r)
	questions.NewHandler(questions.NewService(catalog, api, sessions), secure).RegisterRoutes(r)
	practice.NewHandler(sessions, hub, secure).RegisterRoutes(r)
	tutor.NewHandler(tutor.NewService(llm, api, sessions), secure).RegisterRoutes(r)

	gate := auth.NewGate(secure, "/logout", "/healthz")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	})

	var handler http.Handler = gate.Middleware(r)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.CombinedLoggingHandler(os.Stdout, handler)
	handler = handlers.ProxyHeaders(handler)
	handler = c.Handler(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			glog.Errorf("Shutdown: %v", err)
		}
	}()

	glog.Infof("Server starting on %s (remote API %s)", cfg.HTTPAddr, cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatalf("Server failed: %v", err)
	}
}
