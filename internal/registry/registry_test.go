package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazq/tei-manager-sub000/internal/config"
)

func TestAddAssignsAutoPort(t *testing.T) {
	r := New(nil, 8080, 8090)

	inst, err := r.Add(config.InstanceConfig{Name: "a", ModelID: "m"})
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), inst.Config.Port)

	inst2, err := r.Add(config.InstanceConfig{Name: "b", ModelID: "m"})
	require.NoError(t, err)
	assert.Equal(t, uint16(8081), inst2.Config.Port)
}

func TestAddRejectsDuplicateName(t *testing.T) {
	r := New(nil, 8080, 8090)
	_, err := r.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)

	_, err = r.Add(config.InstanceConfig{Name: "a"})
	assert.Error(t, err)
}

func TestAddRejectsPortConflict(t *testing.T) {
	r := New(nil, 8080, 8090)
	_, err := r.Add(config.InstanceConfig{Name: "a", Port: 8085})
	require.NoError(t, err)

	_, err = r.Add(config.InstanceConfig{Name: "b", Port: 8085})
	assert.Error(t, err)
}

func TestAddRejectsOverMaxInstances(t *testing.T) {
	max := 1
	r := New(&max, 8080, 8090)
	_, err := r.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)

	_, err = r.Add(config.InstanceConfig{Name: "b"})
	assert.Error(t, err)
}

func TestAddFailsWhenPortRangeExhausted(t *testing.T) {
	r := New(nil, 8080, 8082)
	_, err := r.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)
	_, err = r.Add(config.InstanceConfig{Name: "b"})
	require.NoError(t, err)

	_, err = r.Add(config.InstanceConfig{Name: "c"})
	assert.Error(t, err)
}

func TestGetAndListAndCount(t *testing.T) {
	r := New(nil, 8080, 8090)
	_, err := r.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)

	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Equal(t, 1, r.Count())
	assert.Len(t, r.List(), 1)
}

func TestRemoveUnknownInstanceErrors(t *testing.T) {
	r := New(nil, 8080, 8090)
	err := r.Remove("nope", time.Second)
	assert.Error(t, err)
}

func TestSubscribeReceivesAddedEvent(t *testing.T) {
	r := New(nil, 8080, 8090)
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	_, err := r.Add(config.InstanceConfig{Name: "a"})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, EventAdded, ev.Kind)
		assert.Equal(t, "a", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Added event")
	}
}

func TestBrokerReportsLaggedSubscriberInsteadOfBlocking(t *testing.T) {
	b := newBroker()
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	// Fill the subscriber's backlog completely, then publish a few more
	// without draining: these are dropped and counted as skipped.
	for i := 0; i < subscriberBacklog+5; i++ {
		b.publish(Event{Kind: EventAdded, Name: "x"})
	}

	// Free exactly one slot, then publish once more: the broker should use
	// that slot to flush a Lagged marker instead of the new event.
	<-ch
	b.publish(Event{Kind: EventAdded, Name: "y"})

	sawLagged := false
	for {
		select {
		case ev := <-ch:
			if ev.Kind == EventLagged {
				sawLagged = true
				assert.Greater(t, ev.Skipped, 0)
			}
		default:
			assert.True(t, sawLagged, "expected a Lagged marker after overflowing the backlog")
			return
		}
	}
}
