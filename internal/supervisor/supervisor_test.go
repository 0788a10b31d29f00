package supervisor

import (
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/saviobatista/sbs2cot/internal/config"
	"github.com/saviobatista/sbs2cot/internal/logging"
)

func testConfig(path string, args ...string) *config.Config {
	return &config.Config{
		BackendPath: path,
		BackendArgs: args,
		StopTimeout: 200 * time.Millisecond,
	}
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestStart_LaunchFailure(t *testing.T) {
	sup := New(testConfig("/nonexistent/dump1090", "--net", "--quiet"), logging.Nop())

	proc, err := sup.Start()
	if err == nil {
		sup.Stop(proc)
		t.Fatal("Start() should fail for a missing executable")
	}
	if proc != nil {
		t.Error("Start() should return nil process on error")
	}
}

func TestStart_Disabled(t *testing.T) {
	cfg := testConfig("")
	cfg.BackendDisabled = true
	sup := New(cfg, logging.Nop())

	proc, err := sup.Start()
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if proc != nil {
		t.Fatal("Start() should return nil process when disabled")
	}

	// Stop on a nil process is a no-op
	sup.Stop(proc)
}

func TestStop_GracefulTermination(t *testing.T) {
	requireUnix(t)
	sup := New(testConfig("sleep", "30"), logging.Nop())

	proc, err := sup.Start()
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if proc.Pid() <= 0 {
		t.Errorf("Expected a valid pid, got %d", proc.Pid())
	}

	start := time.Now()
	sup.Stop(proc)
	elapsed := time.Since(start)

	select {
	case <-proc.Done():
	default:
		t.Fatal("process should have exited after Stop()")
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("graceful stop took %s, expected it before the kill timeout", elapsed)
	}
	if proc.Err() == nil {
		t.Error("Expected a signal exit error")
	}
}

func TestStop_EscalatesToKill(t *testing.T) {
	requireUnix(t)
	sup := New(testConfig("sh", "-c", `trap "" TERM; sleep 5`), logging.Nop())

	proc, err := sup.Start()
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	// let the shell install its trap
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	sup.Stop(proc)
	elapsed := time.Since(start)

	select {
	case <-proc.Done():
	default:
		t.Fatal("process should have been killed")
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("Stop() returned after %s, expected to wait for the stop timeout first", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Stop() took %s, expected it to be bounded", elapsed)
	}
}

func TestStop_Idempotent(t *testing.T) {
	requireUnix(t)
	sup := New(testConfig("sleep", "30"), logging.Nop())

	proc, err := sup.Start()
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	sup.Stop(proc)
	sup.Stop(proc)
}

func TestStop_AlreadyExited(t *testing.T) {
	requireUnix(t)
	sup := New(testConfig("sh", "-c", "exit 0"), logging.Nop())

	proc, err := sup.Start()
	if err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}

	sup.Stop(proc)
	if proc.Err() != nil {
		t.Errorf("Expected clean exit, got %v", proc.Err())
	}
}
