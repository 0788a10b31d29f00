// Package supervisor owns the lifecycle of the receiver backend process.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/config"
)

// Process is a running backend instance
type Process struct {
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Pid returns the OS process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error; only meaningful after Done is closed
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Supervisor launches and terminates the backend
type Supervisor struct {
	path        string
	args        []string
	disabled    bool
	stopTimeout time.Duration
	log         *zap.SugaredLogger
}

// New creates a supervisor for the configured backend
func New(cfg *config.Config, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		path:        cfg.BackendPath,
		args:        cfg.BackendArgs,
		disabled:    cfg.BackendDisabled,
		stopTimeout: cfg.StopTimeout,
		log:         log,
	}
}

// Start launches the backend with its output discarded. With the backend
// disabled it returns a nil process and no error.
func (s *Supervisor) Start() (*Process, error) {
	if s.disabled {
		s.log.Infow("backend launch disabled, expecting an external feed")
		return nil, nil
	}

	cmd := exec.Command(s.path, s.args...)
	// nil Stdout/Stderr are connected to the null device
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start backend %s: %w", s.path, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	s.log.Infow("backend started", "path", s.path, "args", s.args, "pid", p.Pid())
	return p, nil
}

// Stop terminates the backend: SIGTERM, then SIGKILL if it has not exited
// within the stop timeout. It is safe to call more than once and never fails.
func (s *Supervisor) Stop(p *Process) {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { s.stop(p) })
}

func (s *Supervisor) stop(p *Process) {
	select {
	case <-p.done:
		s.log.Infow("backend already exited", "pid", p.Pid(), "err", p.waitErr)
		return
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warnw("failed to signal backend", "pid", p.Pid(), "err", err)
	}
	if s.waitExit(p) {
		s.log.Infow("backend stopped", "pid", p.Pid())
		return
	}

	s.log.Warnw("backend did not exit in time, killing", "pid", p.Pid(), "timeout", s.stopTimeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warnw("failed to kill backend", "pid", p.Pid(), "err", err)
	}
	if !s.waitExit(p) {
		s.log.Errorw("backend still running after kill", "pid", p.Pid())
		return
	}
	s.log.Infow("backend killed", "pid", p.Pid())
}

func (s *Supervisor) waitExit(p *Process) bool {
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}
