package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlolabs/parlo-core/internal/audio"
	"github.com/parlolabs/parlo-core/internal/bus"
	"github.com/parlolabs/parlo-core/internal/config"
	"github.com/parlolabs/parlo-core/internal/natsserver"
	"github.com/parlolabs/parlo-core/internal/pitch"
	"github.com/parlolabs/parlo-core/internal/practice"
	"github.com/parlolabs/parlo-core/internal/recognizer"
	"github.com/parlolabs/parlo-core/internal/resultstore"
	"github.com/parlolabs/parlo-core/internal/score"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	practice       *practice.Service
	busClient      *bus.Client
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up telemetry, the bus, the result store and the practice
// service, then blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	r.busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer r.busClient.Close()

	store, err := resultstore.Open(ctx, r.cfg.ResultStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	engine, err := r.buildRecognizer()
	if err != nil {
		return fmt.Errorf("failed to build recognizer: %w", err)
	}
	device, err := r.buildCaptureDevice()
	if err != nil {
		return fmt.Errorf("failed to build capture device: %w", err)
	}

	var detector pitch.Detector
	if r.cfg.Pitch.Enabled {
		detector = pitch.NewAutocorrelationDetector(r.cfg.Pitch.MinPitchHz, r.cfg.Pitch.MaxPitchHz)
	}

	r.practice = practice.NewService(ctx, r.cfg, r.busClient,
		score.NewEngine(r.cfg.Scoring), store, engine, device, detector, r.logger)
	if err := r.practice.Start(); err != nil {
		return fmt.Errorf("failed to start practice service: %w", err)
	}
	defer r.practice.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildRecognizer() (recognizer.Engine, error) {
	switch r.cfg.Recognizer.Mode {
	case "exec":
		return recognizer.NewExecEngine(r.cfg.Recognizer)
	default:
		return &recognizer.MockEngine{}, nil
	}
}

func (r *Runtime) buildCaptureDevice() (audio.Device, error) {
	if !r.cfg.Capture.Enabled || r.cfg.Capture.Mode != "exec" {
		return nil, nil
	}
	return audio.NewExecDevice(r.cfg.Capture.Command, r.cfg.Capture.FrameSamples)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.practice.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
