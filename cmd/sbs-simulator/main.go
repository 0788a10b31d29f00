package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saviobatista/sbs2cot/internal/logging"
	"github.com/saviobatista/sbs2cot/internal/simulator"
)

func main() {
	if err := runSimulator(); err != nil {
		fmt.Fprintf(os.Stderr, "sbs-simulator: %v\n", err)
		os.Exit(1)
	}
}

func runSimulator() error {
	_ = godotenv.Load()
	addr, interval, seed, err := parseEnvironment()
	if err != nil {
		return err
	}

	log, err := logging.New(os.Getenv("LOG_LEVEL"), "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := simulator.NewGenerator(seed)
	srv, err := simulator.Listen(addr, interval, gen.Line, log)
	if err != nil {
		return err
	}
	log.Infow("fake SBS feed running", "addr", srv.Addr().String(), "interval", interval)

	return srv.Serve(ctx)
}

// parseEnvironment extracts environment variable parsing logic for testability
func parseEnvironment() (string, time.Duration, uint64, error) {
	addr := os.Getenv("SIM_ADDR")
	if addr == "" {
		addr = "127.0.0.1:30003"
	}

	interval := time.Second
	if raw := os.Getenv("SIM_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return "", 0, 0, fmt.Errorf("SIM_INTERVAL must be a positive duration, got %q", raw)
		}
		interval = d
	}

	seed := uint64(time.Now().UnixNano())
	if raw := os.Getenv("SIM_SEED"); raw != "" {
		s, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return "", 0, 0, fmt.Errorf("SIM_SEED must be an unsigned integer, got %q", raw)
		}
		seed = s
	}

	return addr, interval, seed, nil
}
