// ABOUTME: Daemon wiring: store, run queue, orchestrator, schedule driver, HTTP listeners.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/examload/examload/internal/buildinfo"
	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/schedule"
	"github.com/examload/examload/internal/secrets"
	"github.com/examload/examload/internal/simulation"
)

const shutdownTimeout = 5 * time.Second

// Service wires the control API listener, the optional metrics listener, and
// the run pipeline behind them.
type Service struct {
	cfg             config.Config
	store           *db.Store
	queue           *simulation.RunQueue
	simulations     *simulation.Service
	scheduleDriver  *schedule.Driver
	apiListener     net.Listener
	metricsListener net.Listener
	apiServer       *http.Server
	metricsServer   *http.Server
	logger          *log.Logger
}

// Run opens the database, binds listeners, and serves until ctx is canceled.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	warning, err := config.CheckConfigPermissions(cfg.ConfigPath)
	if err != nil {
		return err
	}
	if warning != "" {
		log.Printf("examloadd: %s", warning)
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	service, err := NewService(cfg, store, log.Default())
	if err != nil {
		_ = store.Close()
		return err
	}
	log.Printf("examloadd: %d targets configured (%s)", len(cfg.Targets), strings.Join(cfg.TargetNames(), ", "))
	return service.Serve(ctx)
}

// NewService constructs a service with bound listeners. The age key is
// generated on first start; later starts reuse it so stored instructor
// passwords stay decryptable.
func NewService(cfg config.Config, store *db.Store, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.Default()
	}
	cipher, err := secrets.GenerateKey(cfg.AgeKeyPath)
	if err != nil {
		return nil, err
	}

	targets := make(map[models.TargetServer]config.Target, len(cfg.Targets))
	for name, target := range cfg.Targets {
		targets[models.TargetServer(name)] = target
	}

	metrics := simulation.NewMetrics()
	notifier := &simulation.LogNotifier{Logger: logger}
	orchestrator := simulation.NewOrchestrator(simulation.OrchestratorConfig{
		Store:    store,
		Targets:  targets,
		Drivers:  simulation.RestDrivers{GitWorkDir: cfg.GitWorkDir},
		Cipher:   cipher,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
		TestMode: cfg.TestMode,
	})
	queue := simulation.NewRunQueue(orchestrator, logger, metrics)
	simulations := simulation.NewService(store, queue, targets, cipher, notifier, logger)
	scheduleDriver := &schedule.Driver{Store: store, Enqueuer: simulations, Logger: logger}

	apiListener, err := net.Listen("tcp", cfg.APIListen)
	if err != nil {
		return nil, fmt.Errorf("listen api %s: %w", cfg.APIListen, err)
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/healthz", healthHandler)
	NewControlAPI(simulations, store, queue, targets, logger).
		WithVersion(buildinfo.Version).
		WithTestMode(cfg.TestMode).
		Register(apiMux)
	apiServer := &http.Server{
		Handler:           apiMux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	var metricsListener net.Listener
	var metricsServer *http.Server
	if strings.TrimSpace(cfg.MetricsListen) != "" {
		metricsListener, err = net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			_ = apiListener.Close()
			return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsListen, err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.HandleFunc("/healthz", healthHandler)
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}
	}

	return &Service{
		cfg:             cfg,
		store:           store,
		queue:           queue,
		simulations:     simulations,
		scheduleDriver:  scheduleDriver,
		apiListener:     apiListener,
		metricsListener: metricsListener,
		apiServer:       apiServer,
		metricsServer:   metricsServer,
		logger:          logger,
	}, nil
}

// Serve starts the run pipeline and blocks until shutdown or a listener
// error occurs. Runs left QUEUED by a previous lifetime are re-enqueued
// before the API accepts new ones.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Printf("examloadd: listening on api=%s", s.cfg.APIListen)
	if s.metricsListener != nil {
		s.logger.Printf("examloadd: listening on metrics=%s", s.cfg.MetricsListen)
	}
	if err := s.queue.Start(ctx); err != nil {
		s.shutdown()
		return err
	}
	if err := s.simulations.RecoverQueuedRuns(ctx); err != nil {
		s.shutdown()
		return err
	}
	go s.scheduleDriver.Start(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- s.apiServer.Serve(s.apiListener) }()
	remaining := 1
	if s.metricsServer != nil {
		go func() { errCh <- s.metricsServer.Serve(s.metricsListener) }()
		remaining = 2
	}

	var serveErr error
	select {
	case <-ctx.Done():
		// graceful shutdown
	case err := <-errCh:
		remaining--
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	s.shutdown()
	for i := 0; i < remaining; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) && serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.apiServer.Shutdown(ctx)
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
