package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

func TestLoadMissingFileReturnsZeroState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	s := New(path, registry.New(nil, 8080, 8090))

	ps, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, ps.Instances)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	reg := registry.New(nil, 8080, 8090)
	_, err := reg.Add(config.InstanceConfig{Name: "a", ModelID: "m", Port: 8081})
	require.NoError(t, err)
	_, err = reg.Add(config.InstanceConfig{Name: "b", ModelID: "m", Port: 8082})
	require.NoError(t, err)

	s := New(path, reg)
	require.NoError(t, s.Save())

	reloaded := New(path, registry.New(nil, 8080, 8090))
	ps, err := reloaded.Load()
	require.NoError(t, err)
	require.Len(t, ps.Instances, 2)
	assert.False(t, ps.LastUpdated.IsZero())

	names := []string{ps.Instances[0].Name, ps.Instances[1].Name}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestLoadCorruptFileIsHardFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml: structure"), 0o644))

	s := New(path, registry.New(nil, 8080, 8090))
	_, err := s.Load()
	assert.Error(t, err)
}

func TestRestoreAddsAndStartsPersistedInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	seedReg := registry.New(nil, 8080, 8090)
	_, err := seedReg.Add(config.InstanceConfig{Name: "a", ModelID: "m", Port: 8081})
	require.NoError(t, err)
	require.NoError(t, New(path, seedReg).Save())

	targetReg := registry.New(nil, 8080, 8090)
	s := New(path, targetReg)
	require.NoError(t, s.Restore("/bin/true"))

	inst := targetReg.Get("a")
	require.NotNil(t, inst)
	assert.True(t, inst.IsRunning())
}

func TestRestoreWithNoStateFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	reg := registry.New(nil, 8080, 8090)
	s := New(path, reg)

	require.NoError(t, s.Restore("/bin/true"))
	assert.Equal(t, 0, reg.Count())
}
