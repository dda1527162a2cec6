package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drone-stream-gateway/internal/platform/config"
	"drone-stream-gateway/internal/platform/database"
	"drone-stream-gateway/internal/platform/logger"
	"drone-stream-gateway/internal/platform/metrics"
	"drone-stream-gateway/internal/registry"
	"drone-stream-gateway/internal/zlm"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8000")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	logFile := config.GetEnv("LOG_FILE", "")
	databaseURL := config.GetEnv("DATABASE_URL", "sqlite://drone_stream.db")
	zlmHost := config.GetEnv("ZLM_HOST", "http://localhost:8000")
	zlmSecret := config.GetEnv("ZLM_SECRET", "")
	zlmTimeout := config.GetEnvDuration("ZLM_TIMEOUT", 5*time.Second)
	playURLBase := config.GetEnv("PLAY_URL_BASE", zlmHost)
	requireRegistration := config.GetEnvBool("REQUIRE_REGISTRATION", false)
	syncInterval := config.GetEnvDuration("ZLM_SYNC_INTERVAL", 0)

	log, closeLog, err := logger.Open(logFile, logLevel, logFormat)
	if err != nil {
		logger.New(logLevel, logFormat).Error("logger setup failed", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	db, err := database.Open(databaseURL, log)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	recordings := registry.NewGormRecordingStore(db)
	if err := recordings.Migrate(context.Background()); err != nil {
		log.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	zlmCfg := zlm.DefaultConfig(zlmHost, zlmSecret)
	zlmCfg.Timeout = zlmTimeout
	media := zlm.NewClient(zlmCfg, log)

	repo := registry.NewInMemoryRepository()
	svc := registry.NewService(repo, recordings, media, registry.Config{
		PlayURLBase:         playURLBase,
		RequireRegistration: requireRegistration,
	}, log)
	met := metrics.New()
	h := registry.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/", h.Root)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context(), db); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetSessions(svc.Counts()) }).ServeHTTP(w, r)
	})
	r.Route("/hook", func(r chi.Router) {
		r.Post("/on_publish", h.OnPublish)
		r.Post("/on_stream_changed", h.OnStreamChanged)
		r.Post("/on_record_mp4", h.OnRecordMp4)
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/stream/register", h.Register)
		r.Post("/stream/{stream_id}/close", h.CloseStream)
		r.Get("/streams/online", h.OnlineStreams)
		r.Get("/recordings", h.Recordings)
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go registry.NewMetadataSyncer(svc, syncInterval, log).Run(ctx)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"zlm_host", zlmHost,
		"play_url_base", playURLBase,
		"require_registration", requireRegistration,
		"zlm_sync_interval", syncInterval.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
