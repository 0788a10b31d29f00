// Package pipeline ties the backend supervisor to the stream forwarder.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/supervisor"
)

// ProcessSupervisor starts and stops the backend
type ProcessSupervisor interface {
	Start() (*supervisor.Process, error)
	Stop(p *supervisor.Process)
}

// StreamForwarder runs until cancelled or a fatal error
type StreamForwarder interface {
	Run(ctx context.Context) error
}

// Runner runs one pipeline to completion
type Runner struct {
	sup ProcessSupervisor
	fwd StreamForwarder
	log *zap.SugaredLogger
}

// New creates a runner
func New(sup ProcessSupervisor, fwd StreamForwarder, log *zap.SugaredLogger) *Runner {
	return &Runner{sup: sup, fwd: fwd, log: log}
}

// Run starts the backend and forwards until ctx is cancelled. The backend is
// stopped on every exit path. Cancellation is a clean shutdown and returns
// nil; there is no automatic restart after a fatal error.
func (r *Runner) Run(ctx context.Context) error {
	proc, err := r.sup.Start()
	if err != nil {
		r.log.Errorw("backend launch failed", "err", err)
		return fmt.Errorf("pipeline not started: %w", err)
	}
	defer r.sup.Stop(proc)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if proc != nil {
		go r.watch(watchCtx, proc)
	}

	err = r.fwd.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		r.log.Infow("interrupted, shutting down")
		return nil
	default:
		r.log.Errorw("forwarder stopped", "err", err)
		return err
	}
}

// watch logs a backend that exits on its own. The forwarder keeps retrying
// the connection, so the exit is reported but not acted on.
func (r *Runner) watch(ctx context.Context, proc *supervisor.Process) {
	select {
	case <-ctx.Done():
	case <-proc.Done():
		if ctx.Err() != nil {
			return
		}
		r.log.Warnw("backend exited unexpectedly", "pid", proc.Pid(), "err", proc.Err())
	}
}
