package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

type fakeProber struct {
	mu      sync.Mutex
	results map[string]error
	calls   int32
}

func (f *fakeProber) set(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]error)
	}
	f.results[name] = err
}

func (f *fakeProber) Probe(ctx context.Context, inst *instance.Instance) error {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[inst.Config.Name]
}

func TestCheckStartingPromotesOnSuccessfulProbe(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	inst, err := reg.Add(config.InstanceConfig{Name: "a", StartupTimeoutSecs: 60})
	require.NoError(t, err)

	prober := &fakeProber{}
	m := New(reg, prober, Config{StartupTimeout: time.Minute})

	// Force status into Starting without a real subprocess.
	forceStarting(inst)

	m.checkOne(context.Background(), inst)
	assert.Equal(t, instance.StatusRunning, inst.Status())
}

func TestCheckStartingFailedProbeIsNotCountedAgainstInstance(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	inst, err := reg.Add(config.InstanceConfig{Name: "a", StartupTimeoutSecs: 60})
	require.NoError(t, err)

	prober := &fakeProber{}
	prober.set("a", errors.New("not ready yet"))
	m := New(reg, prober, Config{StartupTimeout: time.Minute})

	forceStarting(inst)
	m.checkOne(context.Background(), inst)

	assert.Equal(t, instance.StatusStarting, inst.Status())
	assert.Equal(t, 0, inst.Stats().HealthCheckFailures)
}

func TestCheckStartingTimesOutToFailed(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	inst, err := reg.Add(config.InstanceConfig{Name: "a", StartupTimeoutSecs: 0})
	require.NoError(t, err)

	m := New(reg, &fakeProber{}, Config{StartupTimeout: time.Millisecond})
	forceStarting(inst)
	time.Sleep(5 * time.Millisecond)

	m.checkOne(context.Background(), inst)
	assert.Equal(t, instance.StatusFailed, inst.Status())
}

func TestCheckRunningRestartsAfterMaxFailures(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	inst, err := reg.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)

	prober := &fakeProber{}
	prober.set("a", errors.New("down"))
	m := New(reg, prober, Config{MaxFailuresBeforeRestart: 2, GracefulShutdownTimeout: time.Millisecond, WorkerBinaryPath: "/bin/true"})

	forceRunning(inst)
	m.checkOne(context.Background(), inst) // failure 1
	assert.Equal(t, 1, inst.Stats().HealthCheckFailures)

	m.checkOne(context.Background(), inst) // failure 2, triggers restart attempt
	// The forced-Running instance owns no process, so Restart()'s Stop
	// returns at once and /bin/true spawns after the 2s pause; the failure
	// counter must have been reset before the restart was attempted.
	assert.Equal(t, 0, inst.Stats().HealthCheckFailures)
}

// forceStarting/forceRunning exercise the monitor's tick logic without a
// real subprocess by setting status and start time directly through the
// instance package's test seam (TestSetStatus/TestSetStartedAt), bypassing
// Start and the transition helpers.
func forceStarting(inst *instance.Instance) {
	instance.TestSetStatus(inst, instance.StatusStarting)
	instance.TestSetStartedAt(inst, time.Now())
}

func forceRunning(inst *instance.Instance) {
	instance.TestSetStatus(inst, instance.StatusRunning)
}
