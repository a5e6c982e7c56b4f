package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"motion-recorder/internal/detect"
	"motion-recorder/internal/motion"
	"motion-recorder/internal/orchestrator"
	"motion-recorder/internal/platform/config"
	"motion-recorder/internal/platform/logger"
	"motion-recorder/internal/platform/metrics"
	"motion-recorder/internal/retention"
	"motion-recorder/internal/session"
	"motion-recorder/internal/source"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// openLedger is swapped in tests.
var openLedger = openStore

func main() {
	_ = config.Load()
	os.Exit(run())
}

// run wires and runs the recorder until SIGINT or SIGTERM and returns the
// process exit code. Returning instead of exiting lets deferred closes run.
func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	store, err := openLedger(cfg)
	if err != nil {
		log.Error("open session ledger failed", "error", err)
		return 1
	}
	repo := orchestrator.NewLedgerRepositoryWithStore(store)
	defer repo.Close()

	engine, closeEngine, err := openEngine(cfg)
	if err != nil {
		log.Error("load detection engine failed", "error", err)
		return 1
	}
	defer closeEngine()
	// Live and clip gates share one engine; inference is serialized.
	shared := detect.NewSerialized(engine)
	detectLog := logger.Component(log, "detect")
	liveGate := detect.NewGate(shared, cfg.TargetClasses, detectLog, met)
	clipGate := detect.NewGate(shared, cfg.TargetClasses, detectLog, met)

	camera := source.NewCamera(cfg.StreamURL)
	supervisor := session.NewSupervisor(session.Options{
		Root:          cfg.OutputRoot,
		Ext:           cfg.ClipExt,
		Duration:      cfg.RecordDuration,
		TimeoutMargin: cfg.TimeoutMargin,
		MinFPS:        cfg.MinFPS,
		Grace:         cfg.DegradedGrace,
		PollInterval:  cfg.PollInterval,
	}, session.DefaultFFmpegOptions(cfg.FFmpegPath, cfg.StreamURL).Command(), logger.Component(log, "session"), met)
	decider := retention.NewDecider(source.ClipSampler{}, clipGate, cfg.ValidationSamples, logger.Component(log, "retention"), met)

	svc := orchestrator.NewService(orchestrator.Deps{
		Opener:   camera,
		Motion:   motion.NewDetector(cfg.MinArea),
		Gate:     liveGate,
		Recorder: supervisor,
		Retainer: decider,
		Repo:     repo,
	}, cfg.Cooldown, logger.Component(log, "pipeline"), met)
	runner := orchestrator.NewRunner(svc, repo, cfg.RestartBackoff, logger.Component(log, "runner"), met)

	h := orchestrator.NewHandler(repo, log, met)
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(nil).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Healthz)
	r.Get("/sessions", h.Sessions)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server error", "error", err)
		}
	}()

	log.Info("recorder starting",
		"camera", camera.String(),
		"output_root", cfg.OutputRoot,
		"targets", cfg.TargetClasses,
		"min_area", cfg.MinArea,
		"duration", cfg.RecordDuration,
		"hard_timeout", cfg.HardTimeout(),
		"min_fps", cfg.MinFPS,
		"http_addr", cfg.HTTPAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cancelling ctx kills any active recording; its clip is still validated.
	runner.Run(ctx)

	log.Info("shutdown signal received, stopping ops server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("recorder stopped")
	return 0
}

func openStore(cfg config.Config) (orchestrator.Store, error) {
	if cfg.SessionDB == "" {
		return orchestrator.NewInMemoryStore(orchestrator.DefaultLedgerSize), nil
	}
	return orchestrator.NewSQLiteStore(cfg.SessionDB)
}

// openEngine prefers a local model when weights are configured and falls
// back to the HTTP inference service.
func openEngine(cfg config.Config) (detect.Engine, func(), error) {
	if cfg.ModelWeights != "" {
		e, err := detect.NewDNNEngine(cfg.ModelWeights, cfg.ModelConfig, cfg.ModelNames)
		if err != nil {
			return nil, nil, err
		}
		return e, func() { _ = e.Close() }, nil
	}
	return detect.NewHTTPEngine(cfg.DetectURL, cfg.DetectTimeout), func() {}, nil
}
