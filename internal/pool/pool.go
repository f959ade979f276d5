// Package pool maintains one pooled gRPC connection per live backend
// instance, created lazily on first use and torn down when the instance is
// removed, stopped, or goes idle. It substitutes golang.org/x/sync/singleflight
// for the occupied/vacant entry API a concurrent map (DashMap in the
// original) would give for free, so concurrent first-callers for the same
// instance share one dial instead of racing.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/registry"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

var log = logging.WithComponent("pool")

// entry is one cached backend connection plus bookkeeping for idle pruning.
type entry struct {
	client    *muxpb.WorkerClient
	conn      *grpc.ClientConn
	createdAt time.Time

	touchMu  sync.Mutex
	lastUsed time.Time
}

func (e *entry) touch() {
	e.touchMu.Lock()
	e.lastUsed = time.Now()
	e.touchMu.Unlock()
}

func (e *entry) idleSince() time.Time {
	e.touchMu.Lock()
	defer e.touchMu.Unlock()
	return e.lastUsed
}

// Config controls connection and pruning behavior.
type Config struct {
	MaxIdleTime          time.Duration
	PruneInterval        time.Duration
	DialTimeout          time.Duration
	KeepaliveTime        time.Duration
	KeepaliveTimeout     time.Duration
}

// DefaultConfig matches SPEC_FULL SS4.5's defaults.
func DefaultConfig() Config {
	return Config{
		MaxIdleTime:      10 * time.Minute,
		PruneInterval:    1 * time.Minute,
		DialTimeout:      5 * time.Second,
		KeepaliveTime:    30 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// Pool caches one WorkerClient per instance name, keyed on the registry's
// own naming, and stays consistent with the registry via its event feed.
type Pool struct {
	cfg      Config
	registry *registry.Registry
	metrics  *metrics.Collector

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Pool over reg and starts its background event listener
// and idle pruner goroutines.
func New(reg *registry.Registry, collector *metrics.Collector, cfg Config) *Pool {
	p := &Pool{
		cfg:      cfg,
		registry: reg,
		metrics:  collector,
		entries:  make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
	go p.listenEvents()
	go p.idlePruneLoop()
	return p
}

// Stop halts background goroutines and closes every cached connection.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, e := range p.entries {
		e.conn.Close()
		delete(p.entries, name)
	}
}

// Get returns the cached WorkerClient for name, dialing lazily if absent.
// Concurrent first-callers for the same name share one dial via
// singleflight instead of racing to create duplicate connections.
func (p *Pool) Get(ctx context.Context, name string) (*muxpb.WorkerClient, error) {
	p.mu.RLock()
	e, ok := p.entries[name]
	p.mu.RUnlock()
	if ok {
		e.touch()
		return e.client, nil
	}

	inst := p.registry.Get(name)
	if inst == nil {
		return nil, tmerr.InstanceNotFound(name)
	}
	if !inst.IsRunning() {
		return nil, tmerr.BackendUnavailable(fmt.Sprintf("instance %q is not running", name))
	}

	v, err, _ := p.group.Do(name, func() (interface{}, error) {
		return p.dial(ctx, name, inst.Config.Port)
	})
	if err != nil {
		return nil, err
	}
	e = v.(*entry)
	e.touch()
	return e.client, nil
}

func (p *Pool) dial(ctx context.Context, name string, port uint16) (*entry, error) {
	p.mu.RLock()
	if existing, ok := p.entries[name]; ok {
		p.mu.RUnlock()
		return existing, nil
	}
	p.mu.RUnlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                p.cfg.KeepaliveTime,
			Timeout:             p.cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, tmerr.BackendUnavailable(fmt.Sprintf("dial %q: %s", name, err.Error()))
	}

	e := &entry{
		client:    muxpb.NewWorkerClient(conn),
		conn:      conn,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}

	p.mu.Lock()
	p.entries[name] = e
	count := len(p.entries)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SetPoolSize(count)
	}
	log.Info().Str("instance", name).Uint16("port", port).Msg("backend connection established")
	return e, nil
}

// remove closes and deletes name's entry, if any. Caller must not hold
// p.mu.
func (p *Pool) remove(name string) {
	p.mu.Lock()
	e, ok := p.entries[name]
	if ok {
		delete(p.entries, name)
	}
	count := len(p.entries)
	p.mu.Unlock()

	if !ok {
		return
	}
	e.conn.Close()
	if p.metrics != nil {
		p.metrics.SetPoolSize(count)
		p.metrics.ObservePoolEntryAge(time.Since(e.createdAt))
	}
	log.Info().Str("instance", name).Msg("backend connection removed")
}

// listenEvents invalidates cached connections in response to registry
// lifecycle events. A Lagged event means some Stopped/Removed events were
// dropped under load, so it triggers a full orphan sweep instead of a
// targeted removal.
func (p *Pool) listenEvents() {
	ch := p.registry.Subscribe()
	defer p.registry.Unsubscribe(ch)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case registry.EventRemoved, registry.EventStopped:
				p.remove(ev.Name)
			case registry.EventLagged:
				log.Warn().Int("skipped", ev.Skipped).Msg("pool event feed lagged, running orphan sweep")
				p.pruneOrphans()
			}
		case <-p.stopCh:
			return
		}
	}
}

// pruneOrphans removes cached entries whose instance no longer exists in
// the registry, covering events missed during a Lagged gap.
func (p *Pool) pruneOrphans() {
	p.mu.RLock()
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	p.mu.RUnlock()

	for _, name := range names {
		if p.registry.Get(name) == nil {
			p.remove(name)
		}
	}
}

// idlePruneLoop periodically removes connections unused for cfg.MaxIdleTime.
// It collects candidates under a read lock, then removes them without the
// lock held, so a burst of prune work never blocks Get.
func (p *Pool) idlePruneLoop() {
	ticker := time.NewTicker(p.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pruneIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) pruneIdle() {
	now := time.Now()

	p.mu.RLock()
	var stale []string
	for name, e := range p.entries {
		if now.Sub(e.idleSince()) > p.cfg.MaxIdleTime {
			stale = append(stale, name)
		}
	}
	p.mu.RUnlock()

	for _, name := range stale {
		log.Info().Str("instance", name).Msg("pruning idle backend connection")
		p.remove(name)
	}
}

// Stats reports the pool's current occupancy for the admin surface.
type Stats struct {
	ActiveConnections int
	OldestEntryAge    time.Duration
	MaxIdleTime       time.Duration
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{ActiveConnections: len(p.entries), MaxIdleTime: p.cfg.MaxIdleTime}
	now := time.Now()
	for _, e := range p.entries {
		if age := now.Sub(e.createdAt); age > stats.OldestEntryAge {
			stats.OldestEntryAge = age
		}
	}
	return stats
}
