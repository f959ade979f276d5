// Package registry implements the authoritative, concurrency-safe map of
// named instances, port auto-allocation, and the lifecycle event feed the
// pool subscribes to. The health monitor does not subscribe; it reads List
// on every tick.
package registry

import (
	"sync"
	"time"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

var log = logging.WithComponent("registry")

// Registry is the thread-safe fleet map.
type Registry struct {
	mu           sync.RWMutex
	instances    map[string]*instance.Instance
	maxInstances *int
	portStart    uint16
	portEnd      uint16
	portCursor   uint16

	broker  *broker
	metrics *metrics.Collector
}

// New constructs an empty Registry. maxInstances of nil means unlimited.
func New(maxInstances *int, portStart, portEnd uint16) *Registry {
	return &Registry{
		instances:    make(map[string]*instance.Instance),
		maxInstances: maxInstances,
		portStart:    portStart,
		portEnd:      portEnd,
		portCursor:   portStart,
		broker:       newBroker(),
	}
}

// SetMetrics wires collector into the registry so every instance it adds
// from this point on records state transitions and restarts. A nil
// collector (the default in tests) disables metrics recording.
func (r *Registry) SetMetrics(collector *metrics.Collector) {
	r.mu.Lock()
	r.metrics = collector
	r.mu.Unlock()
}

// Add validates and inserts cfg, auto-allocating a port if cfg.Port == 0.
func (r *Registry) Add(cfg config.InstanceConfig) (*instance.Instance, error) {
	r.mu.Lock()

	if _, exists := r.instances[cfg.Name]; exists {
		r.mu.Unlock()
		return nil, tmerr.InstanceExists(cfg.Name)
	}

	if cfg.Port == 0 {
		port, err := r.allocatePortLocked()
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		cfg.Port = port
	} else {
		for _, inst := range r.instances {
			if inst.Config.Port == cfg.Port {
				r.mu.Unlock()
				return nil, tmerr.PortConflict(cfg.Port, inst.Config.Name)
			}
		}
	}

	if r.maxInstances != nil && len(r.instances) >= *r.maxInstances {
		r.mu.Unlock()
		return nil, tmerr.MaxInstancesReached(*r.maxInstances)
	}

	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}

	inst := instance.New(cfg)
	inst.SetMetrics(r.metrics)
	r.instances[cfg.Name] = inst
	total := len(r.instances)
	r.mu.Unlock()

	log.Info().Str("instance", cfg.Name).Int("total_instances", total).Msg("instance added to registry")
	r.broker.publish(Event{Kind: EventAdded, Name: cfg.Name})

	return inst, nil
}

// allocatePortLocked must be called with mu held for write. It scans
// [portStart, portEnd) starting from the cursor for the next free port.
func (r *Registry) allocatePortLocked() (uint16, error) {
	used := make(map[uint16]bool, len(r.instances))
	for _, inst := range r.instances {
		used[inst.Config.Port] = true
	}

	rangeSize := int(r.portEnd) - int(r.portStart)
	for n := 0; n < rangeSize; n++ {
		candidate := r.portStart + uint16((int(r.portCursor-r.portStart)+n)%rangeSize)
		if !used[candidate] {
			r.portCursor = candidate + 1
			if r.portCursor >= r.portEnd {
				r.portCursor = r.portStart
			}
			return candidate, nil
		}
	}
	return 0, tmerr.PortAllocationFailed("no free ports in configured range")
}

// Get returns the instance named name, or nil if absent.
func (r *Registry) Get(name string) *instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// Remove deletes name from the map, releasing the write lock before
// stopping the instance so that stop's I/O is never performed under lock.
func (r *Registry) Remove(name string, gracePeriod time.Duration) error {
	r.mu.Lock()
	inst, exists := r.instances[name]
	if !exists {
		r.mu.Unlock()
		return tmerr.InstanceNotFound(name)
	}
	delete(r.instances, name)
	r.mu.Unlock()

	if err := inst.Stop(gracePeriod); err != nil {
		return err
	}

	log.Info().Str("instance", name).Msg("instance removed from registry")
	r.broker.publish(Event{Kind: EventRemoved, Name: name})
	return nil
}

// List returns a snapshot of all instances currently registered.
func (r *Registry) List() []*instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*instance.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// Count returns the number of registered instances.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Subscribe returns a channel of lifecycle events. Slow consumers receive
// Lagged markers instead of blocking the registry.
func (r *Registry) Subscribe() <-chan Event {
	return r.broker.subscribe()
}

// Unsubscribe detaches ch, returned by a prior Subscribe call.
func (r *Registry) Unsubscribe(ch <-chan Event) {
	r.broker.unsubscribe(ch)
}

// NotifyStarted emits Started(name) after a caller has successfully started
// the instance.
func (r *Registry) NotifyStarted(name string) {
	r.broker.publish(Event{Kind: EventStarted, Name: name})
}

// NotifyStopped emits Stopped(name) after a caller has successfully stopped
// the instance outside of Remove (e.g. a health-monitor-triggered stop that
// precedes a restart).
func (r *Registry) NotifyStopped(name string) {
	r.broker.publish(Event{Kind: EventStopped, Name: name})
}

// Close shuts down the event feed. Intended for supervisor shutdown.
func (r *Registry) Close() {
	r.broker.closeAll()
}
