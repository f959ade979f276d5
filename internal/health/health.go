// Package health runs the periodic probe loop that promotes Starting
// instances to Running on a successful probe or to Failed on timeout, and
// restarts Running instances after too many consecutive probe failures. It
// is the only component that triggers a restart based on observed failure.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

var log = logging.WithComponent("health")

// Prober checks whether a running instance is still answering. Production
// wiring probes the worker's own RPC surface; tests supply a fake.
type Prober interface {
	Probe(ctx context.Context, inst *instance.Instance) error
}

// Config controls the monitor's timing knobs.
type Config struct {
	CheckInterval            time.Duration
	StartupTimeout           time.Duration
	MaxFailuresBeforeRestart int
	GracefulShutdownTimeout  time.Duration
	WorkerBinaryPath         string

	// Metrics records per-probe outcomes. Nil (the default in tests)
	// disables health-check metrics recording.
	Metrics *metrics.Collector
}

// Monitor runs the single background probe loop described in SPEC_FULL SS4.4.
type Monitor struct {
	registry *registry.Registry
	prober   Prober
	cfg      Config

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Monitor over reg, probing with prober per cfg.
func New(reg *registry.Registry, prober Prober, cfg Config) *Monitor {
	return &Monitor{
		registry: reg,
		prober:   prober,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks, ticking every cfg.CheckInterval until ctx is cancelled or Stop
// is called.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", m.cfg.CheckInterval).Msg("health monitor started")

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-m.stopCh:
			log.Info().Msg("health monitor stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("health monitor stopped (context cancelled)")
			return
		}
	}
}

// Stop halts the loop; safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// tick fans per-instance checks out in parallel and waits for all of them,
// so that one slow instance never delays the next instance's check, while
// ordering within a single instance stays serial.
func (m *Monitor) tick(ctx context.Context) {
	instances := m.registry.List()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *instance.Instance) {
			defer wg.Done()
			m.checkOne(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

func (m *Monitor) checkOne(ctx context.Context, inst *instance.Instance) {
	switch inst.Status() {
	case instance.StatusStarting:
		m.checkStarting(ctx, inst)
	case instance.StatusRunning:
		m.checkRunningProbe(ctx, inst)
	default:
		// Stopping, Stopped, Failed: nothing to do this tick.
	}
}

// checkStarting probes a Starting instance purely to detect readiness: a
// successful probe promotes it to Running. A failed probe is not counted
// against the instance -- per SPEC_FULL SS4.4, failure counters are gated
// on status == Running -- the only thing that can fail a Starting instance
// is the startup timeout elapsing.
func (m *Monitor) checkStarting(ctx context.Context, inst *instance.Instance) {
	started := inst.Stats().StartedAt
	if !started.IsZero() {
		timeout := m.cfg.StartupTimeout
		if inst.Config.StartupTimeoutSecs > 0 {
			timeout = time.Duration(inst.Config.StartupTimeoutSecs) * time.Second
		}
		if time.Since(started) > timeout {
			log.Warn().Str("instance", inst.Config.Name).Dur("elapsed", time.Since(started)).
				Msg("instance exceeded startup timeout, marking failed")
			inst.MarkFailed()
			return
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := m.prober.Probe(probeCtx, inst)
	m.recordHealthCheck(inst.Config.Name, err)
	if err == nil {
		inst.MarkRunning()
		inst.RecordHealthCheckSuccess()
	}
}

// recordHealthCheck records one probe outcome, if a collector is configured.
func (m *Monitor) recordHealthCheck(name string, err error) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.HealthCheck(name, err == nil)
	}
}

func (m *Monitor) checkRunningProbe(ctx context.Context, inst *instance.Instance) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := m.prober.Probe(probeCtx, inst)
	m.recordHealthCheck(inst.Config.Name, err)

	if err != nil {
		failures := inst.RecordHealthCheckFailure()
		log.Warn().Str("instance", inst.Config.Name).Err(err).Int("consecutive_failures", failures).
			Msg("health probe failed")

		if failures >= m.cfg.MaxFailuresBeforeRestart {
			log.Error().Str("instance", inst.Config.Name).Msg("max consecutive failures reached, restarting")
			inst.ResetHealthCheckFailures()
			if err := inst.Restart(m.cfg.WorkerBinaryPath, m.cfg.GracefulShutdownTimeout); err != nil {
				log.Error().Str("instance", inst.Config.Name).Err(err).Msg("restart failed")
			} else {
				m.registry.NotifyStopped(inst.Config.Name)
				m.registry.NotifyStarted(inst.Config.Name)
			}
		}
		return
	}

	inst.MarkRunning()
	inst.RecordHealthCheckSuccess()
}
