package instance

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazq/tei-manager-sub000/internal/config"
)

func newConfig(name string) config.InstanceConfig {
	return config.InstanceConfig{
		Name:                  name,
		ModelID:               "BAAI/bge-small-en",
		Port:                  9500,
		MaxBatchTokens:        16384,
		MaxConcurrentRequests: 128,
	}
}

func TestNewInstanceStartsStopped(t *testing.T) {
	inst := New(newConfig("a"))
	assert.Equal(t, StatusStopped, inst.Status())
	assert.Equal(t, 0, inst.PID())
	assert.False(t, inst.IsRunning())
}

func TestStartSpawnsProcessAndTransitionsToStarting(t *testing.T) {
	inst := New(newConfig("a"))
	require.NoError(t, inst.Start("/bin/sleep"))
	defer inst.Stop(time.Second)

	assert.Equal(t, StatusStarting, inst.Status())
	assert.True(t, inst.IsRunning())
	assert.NotZero(t, inst.PID())
	assert.False(t, inst.Stats().StartedAt.IsZero())
}

func TestStartRejectsAlreadyStartedInstance(t *testing.T) {
	inst := New(newConfig("a"))
	require.NoError(t, inst.Start("/bin/sleep"))
	defer inst.Stop(time.Second)

	err := inst.Start("/bin/sleep")
	assert.Error(t, err)
}

func TestStartReturnsErrorForMissingBinary(t *testing.T) {
	inst := New(newConfig("a"))
	err := inst.Start("/no/such/binary/exists")
	assert.Error(t, err)
	assert.Equal(t, StatusStopped, inst.Status())
}

func TestStopOnAlreadyStoppedInstanceIsNoop(t *testing.T) {
	inst := New(newConfig("a"))
	assert.NoError(t, inst.Stop(time.Second))
	assert.Equal(t, StatusStopped, inst.Status())
}

func TestStopTerminatesRunningProcess(t *testing.T) {
	inst := New(newConfig("a"))
	require.NoError(t, inst.Start("/bin/sleep"))

	require.NoError(t, inst.Stop(2*time.Second))
	assert.Equal(t, StatusStopped, inst.Status())
	assert.Equal(t, 0, inst.PID())
}

func TestStopWithNearZeroGracePeriodStillStops(t *testing.T) {
	// A near-zero grace period sends Stop down the SIGKILL branch of the
	// select unless the child has already exited on its own; either way
	// Stop must end in Stopped.
	inst := New(newConfig("a"))
	require.NoError(t, inst.Start("/bin/sleep"))

	require.NoError(t, inst.Stop(time.Millisecond))
	assert.Equal(t, StatusStopped, inst.Status())
}

func TestMarkRunningOnlyPromotesFromStarting(t *testing.T) {
	inst := New(newConfig("a"))
	inst.MarkRunning()
	assert.Equal(t, StatusStopped, inst.Status(), "MarkRunning must not affect a Stopped instance")

	TestSetStatus(inst, StatusStarting)
	inst.MarkRunning()
	assert.Equal(t, StatusRunning, inst.Status())
}

func TestMarkFailedAlwaysTransitions(t *testing.T) {
	inst := New(newConfig("a"))
	inst.MarkFailed()
	assert.Equal(t, StatusFailed, inst.Status())
}

func TestHealthCheckCounters(t *testing.T) {
	inst := New(newConfig("a"))

	assert.Equal(t, 1, inst.RecordHealthCheckFailure())
	assert.Equal(t, 2, inst.RecordHealthCheckFailure())
	assert.Equal(t, 2, inst.Stats().HealthCheckFailures)

	inst.RecordHealthCheckSuccess()
	assert.Equal(t, 0, inst.Stats().HealthCheckFailures)
	assert.False(t, inst.Stats().LastHealthCheck.IsZero())

	inst.RecordHealthCheckFailure()
	inst.ResetHealthCheckFailures()
	assert.Equal(t, 0, inst.Stats().HealthCheckFailures)
}

func TestStartWithGPUIDRetainsInheritedEnvironment(t *testing.T) {
	gpuID := uint32(0)
	cfg := newConfig("a")
	cfg.GPUID = &gpuID
	inst := New(cfg)

	require.NoError(t, inst.Start("/bin/sleep"))
	defer inst.Stop(time.Second)

	env := inst.process.Env
	assert.True(t, envHasKey(env, "PATH"), "child env must retain inherited PATH, got %v", env)
	assert.True(t, envHasPrefix(env, "CUDA_VISIBLE_DEVICES="), "child env must carry CUDA_VISIBLE_DEVICES, got %v", env)
}

func envHasKey(env []string, key string) bool {
	return envHasPrefix(env, key+"=")
}

func envHasPrefix(env []string, prefix string) bool {
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func TestBuildEnvReturnsCopyOfInheritedEnvironment(t *testing.T) {
	inst := New(newConfig("a"))
	env := inst.buildEnv()
	assert.True(t, envHasKey(env, "PATH") || len(os.Environ()) == 0)
	assert.Equal(t, len(os.Environ()), len(env))
}

func TestBuildArgsIncludesOptionalFlagsOnlyWhenSet(t *testing.T) {
	cfg := newConfig("a")
	inst := New(cfg)
	args := inst.buildArgs()

	assert.Contains(t, args, "--model-id")
	assert.Contains(t, args, cfg.ModelID)
	assert.NotContains(t, args, "--pooling")
	assert.NotContains(t, args, "--prometheus-port")

	cfg.Pooling = "cls"
	cfg.PrometheusPort = 9090
	cfg.ExtraArgs = []string{"--dtype", "float16"}
	inst2 := New(cfg)
	args2 := inst2.buildArgs()

	assert.Contains(t, args2, "--pooling")
	assert.Contains(t, args2, "cls")
	assert.Contains(t, args2, "--prometheus-port")
	assert.Contains(t, args2, "--dtype")
	assert.Contains(t, args2, "float16")
}
