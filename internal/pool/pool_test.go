package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/registry"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.PruneInterval = time.Hour // keep the background pruner out of the way
	cfg.MaxIdleTime = time.Hour
	return cfg
}

func markRunningForTest(t *testing.T, inst *instance.Instance) {
	t.Helper()
	instance.TestSetStatus(inst, instance.StatusRunning)
}

// fakeConn returns a real, non-blocking ClientConn so tests that exercise
// entry removal can call conn.Close() safely without a live backend.
func fakeConn(t *testing.T) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.Dial("127.0.0.1:0", grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	return conn
}

func TestGetUnknownInstanceReturnsNotFound(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	p := New(reg, nil, testConfig())
	defer p.Stop()

	_, err := p.Get(context.Background(), "missing")
	te, ok := tmerr.As(err)
	require.True(t, ok)
	assert.Equal(t, tmerr.CodeInstanceNotFound, te.Code)
}

func TestGetNotRunningInstanceReturnsBackendUnavailable(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := reg.Add(config.InstanceConfig{Name: "a", Port: 8081})
	require.NoError(t, err)

	p := New(reg, nil, testConfig())
	defer p.Stop()

	_, err = p.Get(context.Background(), "a")
	te, ok := tmerr.As(err)
	require.True(t, ok)
	assert.Equal(t, tmerr.CodeBackendUnavailable, te.Code)
}

func TestGetDialFailureReturnsBackendUnavailable(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	inst, err := reg.Add(config.InstanceConfig{Name: "a", Port: 19999})
	require.NoError(t, err)
	// No real worker listens on 19999; IsRunning must be true for Get to
	// attempt the dial at all, so force the running state directly.
	markRunningForTest(t, inst)

	p := New(reg, nil, testConfig())
	defer p.Stop()

	_, err = p.Get(context.Background(), "a")
	te, ok := tmerr.As(err)
	require.True(t, ok)
	assert.Equal(t, tmerr.CodeBackendUnavailable, te.Code)
}

func TestStatsReportsEmptyPool(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	p := New(reg, nil, testConfig())
	defer p.Stop()

	stats := p.Stats()
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, time.Duration(0), stats.OldestEntryAge)
}

func TestStatsCountsFakeEntries(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	p := New(reg, nil, testConfig())
	defer p.Stop()

	p.mu.Lock()
	p.entries["a"] = &entry{createdAt: time.Now().Add(-time.Minute), lastUsed: time.Now()}
	p.entries["b"] = &entry{createdAt: time.Now(), lastUsed: time.Now()}
	p.mu.Unlock()

	stats := p.Stats()
	assert.Equal(t, 2, stats.ActiveConnections)
	assert.GreaterOrEqual(t, stats.OldestEntryAge, 59*time.Second)
}

func TestPruneIdleRemovesStaleEntriesOnly(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	p := New(reg, nil, testConfig())
	defer p.Stop()
	p.cfg.MaxIdleTime = time.Minute

	p.mu.Lock()
	p.entries["stale"] = &entry{conn: fakeConn(t), createdAt: time.Now(), lastUsed: time.Now().Add(-2 * time.Minute)}
	p.entries["fresh"] = &entry{conn: fakeConn(t), createdAt: time.Now(), lastUsed: time.Now()}
	p.mu.Unlock()

	// remove() calls e.conn.Close(), so both entries carry a closable
	// fakeConn and the test goes through pruneIdle itself.
	p.pruneIdle()

	p.mu.RLock()
	_, staleStillThere := p.entries["stale"]
	_, freshStillThere := p.entries["fresh"]
	p.mu.RUnlock()

	assert.False(t, staleStillThere)
	assert.True(t, freshStillThere)
}

func TestPruneOrphansRemovesEntriesWithNoRegistryInstance(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := reg.Add(config.InstanceConfig{Name: "known", Port: 8081})
	require.NoError(t, err)

	p := New(reg, nil, testConfig())
	defer p.Stop()

	p.mu.Lock()
	p.entries["known"] = &entry{conn: fakeConn(t), createdAt: time.Now(), lastUsed: time.Now()}
	p.entries["gone"] = &entry{conn: fakeConn(t), createdAt: time.Now(), lastUsed: time.Now()}
	p.mu.Unlock()

	p.pruneOrphans()

	p.mu.RLock()
	_, knownStillThere := p.entries["known"]
	_, goneStillThere := p.entries["gone"]
	p.mu.RUnlock()

	assert.True(t, knownStillThere)
	assert.False(t, goneStillThere)
}

func TestStopClosesAllEntriesAndClearsMap(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	p := New(reg, nil, testConfig())

	p.mu.Lock()
	p.entries["a"] = &entry{conn: fakeConn(t), createdAt: time.Now(), lastUsed: time.Now()}
	p.mu.Unlock()

	p.Stop()

	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Empty(t, p.entries)
}
