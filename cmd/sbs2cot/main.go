package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/config"
	"github.com/saviobatista/sbs2cot/internal/forwarder"
	"github.com/saviobatista/sbs2cot/internal/health"
	"github.com/saviobatista/sbs2cot/internal/logging"
	"github.com/saviobatista/sbs2cot/internal/metrics"
	"github.com/saviobatista/sbs2cot/internal/nats"
	"github.com/saviobatista/sbs2cot/internal/pipeline"
	"github.com/saviobatista/sbs2cot/internal/stats"
	"github.com/saviobatista/sbs2cot/internal/supervisor"
)

func main() {
	if err := runBridge(); err != nil {
		fmt.Fprintf(os.Stderr, "sbs2cot: %v\n", err)
		os.Exit(1)
	}
}

func runBridge() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	baseLog, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = baseLog.Sync() }()

	runID := uuid.New().String()
	log := baseLog.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirror, err := setupMirror(cfg, runID, log)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
	}

	st := stats.New()
	go st.StartReporting(ctx, cfg.StatsInterval, log)

	healthHandler := setupHealth(runID, mirror)
	if cfg.MetricsAddr != "" {
		go metrics.ServeWithHealth(ctx, cfg.MetricsAddr, healthHandler, log)
	}

	fwd := forwarder.New(cfg, log, forwarderOptions(st, healthHandler, mirror)...)
	runner := pipeline.New(supervisor.New(cfg, log), fwd, log)

	if err := runner.Run(ctx); err != nil {
		return err
	}
	log.Infow("shutdown complete", "stats", st.GetStats())
	return nil
}

// setupMirror connects the optional NATS mirror; nil when NATS_URL is unset
func setupMirror(cfg *config.Config, runID string, log *zap.SugaredLogger) (*nats.Client, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	client, err := nats.New(cfg.NATSURL, cfg.NATSSubject, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS client: %w", err)
	}
	log.Infow("mirroring events to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject+".>")
	return client, nil
}

// setupHealth builds the health handler; readiness follows the forwarder
func setupHealth(runID string, mirror *nats.Client) *health.Handler {
	h := health.NewHandler()
	h.SetMetadata("run_id", runID)

	var probe func(ctx context.Context) error
	if mirror != nil {
		probe = mirror.Check
	}
	h.RegisterChecker("nats", health.NewFuncChecker("nats", probe))
	return h
}

func forwarderOptions(st *stats.Stats, observer forwarder.StateObserver, mirror *nats.Client) []forwarder.Option {
	opts := []forwarder.Option{
		forwarder.WithStats(st),
		forwarder.WithObserver(observer),
	}
	if mirror != nil {
		opts = append(opts, forwarder.WithMirror(mirror))
	}
	return opts
}
