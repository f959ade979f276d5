// Package instance implements the worker-subprocess state machine: one
// Instance owns one worker process and exposes Start/Stop/Restart plus
// observation helpers. The supervisor never reaps a worker passively -- an
// unexpected exit is detected by the health monitor, not here.
package instance

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/gpudetect"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

var log = logging.WithComponent("instance")

// Status is the instance's lifecycle state.
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusStarting:
		return "Starting"
	case StatusRunning:
		return "Running"
	case StatusStopping:
		return "Stopping"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Stats tracks observed runtime history for an instance.
type Stats struct {
	StartedAt             time.Time
	Restarts              int
	LastHealthCheck       time.Time
	HealthCheckFailures   int
}

// Instance owns one worker subprocess. Config is immutable after creation;
// process, status, and stats are each independently guarded so that readers
// never block writers of an unrelated cell.
type Instance struct {
	Config config.InstanceConfig

	mu      sync.RWMutex
	process *exec.Cmd
	waitErr error
	waitCh  chan struct{}

	statusMu sync.RWMutex
	status   Status

	statsMu sync.RWMutex
	stats   Stats

	metrics *metrics.Collector
}

// New constructs a stopped Instance for cfg.
func New(cfg config.InstanceConfig) *Instance {
	return &Instance{
		Config: cfg,
		status: StatusStopped,
	}
}

// SetMetrics wires collector into the instance so state transitions and
// restarts are recorded. Called once by the registry right after
// construction, before the instance is shared with any other goroutine; a
// nil collector (the default in tests) disables metrics recording.
func (i *Instance) SetMetrics(collector *metrics.Collector) {
	i.metrics = collector
}

// Status returns the instance's current lifecycle state.
func (i *Instance) Status() Status {
	i.statusMu.RLock()
	defer i.statusMu.RUnlock()
	return i.status
}

func (i *Instance) setStatus(s Status) {
	i.statusMu.Lock()
	i.status = s
	i.statusMu.Unlock()
}

// transition moves the instance to status to and records a state-transition
// metric when the status actually changes. All production status changes
// (Start, Stop, MarkFailed) go through this instead of the bare setStatus
// tests use to force state directly.
func (i *Instance) transition(to Status) {
	i.statusMu.Lock()
	from := i.status
	i.status = to
	i.statusMu.Unlock()

	if i.metrics != nil && from != to {
		i.metrics.StateTransition(i.Config.Name, from.String(), to.String())
	}
}

// Stats returns a copy of the instance's runtime statistics.
func (i *Instance) Stats() Stats {
	i.statsMu.RLock()
	defer i.statsMu.RUnlock()
	return i.stats
}

// PID returns the worker's process id, or 0 if not running.
func (i *Instance) PID() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.process == nil || i.process.Process == nil {
		return 0
	}
	return i.process.Process.Pid
}

// IsRunning reports whether the instance currently owns a live process
// handle (Starting, Running, or Stopping all count).
func (i *Instance) IsRunning() bool {
	switch i.Status() {
	case StatusStarting, StatusRunning, StatusStopping:
		return true
	default:
		return false
	}
}

// Start spawns the worker subprocess. Fails if the instance is not Stopped.
// Does not wait for readiness -- that is the health monitor's job.
func (i *Instance) Start(binaryPath string) error {
	if s := i.Status(); s != StatusStopped {
		return tmerr.InvalidInstanceState(i.Config.Name, s.String(), StatusStopped.String())
	}

	args := i.buildArgs()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = i.buildEnv()

	if i.Config.GPUID != nil {
		if dev, ok := gpudetect.DetectOnce().ResolveCUDADevice(*i.Config.GPUID); ok {
			cmd.Env = append(cmd.Env, "CUDA_VISIBLE_DEVICES="+dev)
		} else {
			cmd.Env = append(cmd.Env, "CUDA_VISIBLE_DEVICES="+strconv.FormatUint(uint64(*i.Config.GPUID), 10))
		}
	}

	if err := cmd.Start(); err != nil {
		return tmerr.Internal(fmt.Sprintf("spawn worker %q", i.Config.Name)).WithCause(err)
	}

	waitCh := make(chan struct{})
	i.mu.Lock()
	i.process = cmd
	i.waitCh = waitCh
	i.mu.Unlock()

	// kill-on-drop safety net: if this Instance is garbage collected without
	// an explicit Stop (e.g. the supervisor crashes mid-operation), the
	// finalizer still terminates the child instead of leaking it.
	runtime.SetFinalizer(i, (*Instance).killOnFinalize)

	go func() {
		err := cmd.Wait()
		i.mu.Lock()
		i.waitErr = err
		i.mu.Unlock()
		close(waitCh)
	}()

	i.transition(StatusStarting)
	i.statsMu.Lock()
	i.stats.StartedAt = time.Now()
	i.statsMu.Unlock()

	log.Info().Str("instance", i.Config.Name).Int("pid", cmd.Process.Pid).Msg("worker started")

	return nil
}

// Stop gracefully terminates the worker, escalating to SIGKILL after
// gracePeriod. Idempotent: stopping an already-Stopped instance succeeds.
func (i *Instance) Stop(gracePeriod time.Duration) error {
	if i.Status() == StatusStopped {
		return nil
	}
	i.transition(StatusStopping)

	i.mu.Lock()
	cmd := i.process
	waitCh := i.waitCh
	i.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		i.transition(StatusStopped)
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	if waitCh != nil {
		select {
		case <-waitCh:
		case <-time.After(gracePeriod):
			_ = cmd.Process.Kill()
			<-waitCh
		}
	}

	i.mu.Lock()
	i.process = nil
	i.waitCh = nil
	i.mu.Unlock()

	i.transition(StatusStopped)
	runtime.SetFinalizer(i, nil)
	log.Info().Str("instance", i.Config.Name).Msg("worker stopped")
	return nil
}

// killOnFinalize is registered as i's finalizer while a child process is
// owned, and cleared on every successful Stop. It is the last-resort
// equivalent of the kill-on-drop contract a reference-counted language gives
// for free: if nothing ever calls Stop and every other reference to i is
// gone, the GC still reaps the child instead of leaking it.
func (i *Instance) killOnFinalize() {
	i.mu.RLock()
	cmd := i.process
	i.mu.RUnlock()
	if cmd != nil && cmd.Process != nil {
		log.Warn().Str("instance", i.Config.Name).Int("pid", cmd.Process.Pid).
			Msg("instance garbage collected without Stop, killing orphaned worker")
		_ = cmd.Process.Kill()
	}
}

// Restart stops, waits briefly for the OS to release the port, then starts
// again, incrementing the restart counter. Triggered only by the health
// monitor, so every call here is a metrics-worthy restart.
func (i *Instance) Restart(binaryPath string, gracePeriod time.Duration) error {
	if err := i.Stop(gracePeriod); err != nil {
		return err
	}
	time.Sleep(2 * time.Second)
	if err := i.Start(binaryPath); err != nil {
		return err
	}
	i.statsMu.Lock()
	i.stats.Restarts++
	i.statsMu.Unlock()
	if i.metrics != nil {
		i.metrics.Restart(i.Config.Name)
	}
	return nil
}

// MarkRunning transitions Starting -> Running after a successful readiness
// probe. Called by the health monitor, never by Start itself.
func (i *Instance) MarkRunning() {
	i.statusMu.Lock()
	from := i.status
	if i.status == StatusStarting {
		i.status = StatusRunning
	}
	to := i.status
	i.statusMu.Unlock()

	if i.metrics != nil && from != to {
		i.metrics.StateTransition(i.Config.Name, from.String(), to.String())
	}
}

// MarkFailed transitions the instance to Failed, e.g. on startup timeout.
// A Failed instance holds no process handle: pid != None ⟺ status ∈
// {Starting, Running, Stopping}, so any child still attached to this
// instance is killed and reaped here rather than left running.
func (i *Instance) MarkFailed() {
	i.mu.Lock()
	cmd := i.process
	waitCh := i.waitCh
	i.process = nil
	i.waitCh = nil
	i.mu.Unlock()

	i.transition(StatusFailed)
	runtime.SetFinalizer(i, nil)

	if cmd == nil || cmd.Process == nil {
		return
	}

	log.Warn().Str("instance", i.Config.Name).Int("pid", cmd.Process.Pid).
		Msg("killing worker after startup failure")
	_ = cmd.Process.Kill()
	if waitCh != nil {
		<-waitCh
	}
}

// RecordHealthCheckSuccess zeroes the consecutive-failure counter.
func (i *Instance) RecordHealthCheckSuccess() {
	i.statsMu.Lock()
	i.stats.LastHealthCheck = time.Now()
	i.stats.HealthCheckFailures = 0
	i.statsMu.Unlock()
}

// RecordHealthCheckFailure increments the consecutive-failure counter and
// returns the new count.
func (i *Instance) RecordHealthCheckFailure() int {
	i.statsMu.Lock()
	defer i.statsMu.Unlock()
	i.stats.HealthCheckFailures++
	return i.stats.HealthCheckFailures
}

// ResetHealthCheckFailures zeroes the consecutive-failure counter, e.g.
// after a restart has been triggered.
func (i *Instance) ResetHealthCheckFailures() {
	i.statsMu.Lock()
	i.stats.HealthCheckFailures = 0
	i.statsMu.Unlock()
}

func (i *Instance) buildArgs() []string {
	args := []string{
		"--model-id", i.Config.ModelID,
		"--port", strconv.FormatUint(uint64(i.Config.Port), 10),
		"--max-batch-tokens", strconv.FormatUint(uint64(i.Config.MaxBatchTokens), 10),
		"--max-concurrent-requests", strconv.FormatUint(uint64(i.Config.MaxConcurrentRequests), 10),
		"--json-output",
	}
	if i.Config.Pooling != "" {
		args = append(args, "--pooling", i.Config.Pooling)
	}
	if i.Config.PrometheusPort != 0 {
		args = append(args, "--prometheus-port", strconv.FormatUint(uint64(i.Config.PrometheusPort), 10))
	}
	args = append(args, i.Config.ExtraArgs...)
	return args
}

// buildEnv seeds the child's environment from the parent's rather than
// leaving cmd.Env nil, since appending to a nil cmd.Env (to add
// CUDA_VISIBLE_DEVICES) would otherwise replace the inherited environment
// instead of extending it.
func (i *Instance) buildEnv() []string {
	return append([]string(nil), os.Environ()...)
}
