package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsNamespace(t *testing.T) {
	c := New("")
	require.NotNil(t, c.Registry())

	count, err := testutil.GatherAndCount(c.Registry())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestStateTransitionIncrementsCounter(t *testing.T) {
	c := New("test")
	c.StateTransition("a", "Stopped", "Starting")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.stateTransitions.WithLabelValues("a", "Stopped", "Starting")))
}

func TestRestartIncrementsCounter(t *testing.T) {
	c := New("test")
	c.Restart("a")
	c.Restart("a")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.restarts.WithLabelValues("a")))
}

func TestHealthCheckLabelsSuccessAndFailure(t *testing.T) {
	c := New("test")
	c.HealthCheck("a", true)
	c.HealthCheck("a", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.healthChecks.WithLabelValues("a", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.healthChecks.WithLabelValues("a", "failure")))
}

func TestSetPoolSize(t *testing.T) {
	c := New("test")
	c.SetPoolSize(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(c.poolSize))
}

func TestObservePoolEntryAgeRecordsASample(t *testing.T) {
	c := New("test")
	c.ObservePoolEntryAge(90 * time.Second)

	count, err := testutil.GatherAndCount(c.registry, "test_backend_pool_entry_age_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserveForwardLabelsOkAndError(t *testing.T) {
	c := New("test")
	c.ObserveForward("Embed", 10*time.Millisecond, nil)
	c.ObserveForward("Embed", 10*time.Millisecond, assertError{})

	count, err := testutil.GatherAndCount(c.registry, "test_multiplexer_forward_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // distinct status labels each produce their own series
}

func TestForwardErrorIncrementsCounter(t *testing.T) {
	c := New("test")
	c.ForwardError("Embed", "Unavailable")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.forwardErrors.WithLabelValues("Embed", "Unavailable")))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
