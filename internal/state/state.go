// Package state implements atomic persistence of instance configurations:
// write to a temp file, fsync, rename over the target path. A corrupt state
// file is a hard failure on load -- the manager never silently discards
// fleet state.
package state

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/registry"
	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

var log = logging.WithComponent("state")

// PersistedState is the only durable datum the manager keeps.
type PersistedState struct {
	LastUpdated time.Time               `yaml:"last_updated"`
	Instances   []config.InstanceConfig `yaml:"instances"`
}

// Store persists the registry's instance configs to a single file.
type Store struct {
	path     string
	registry *registry.Registry
}

// New constructs a Store writing to path, reading instance configs from reg.
func New(path string, reg *registry.Registry) *Store {
	return &Store{path: path, registry: reg}
}

// Save atomically writes the current registry configs to disk.
func (s *Store) Save() error {
	instances := s.registry.List()
	cfgs := make([]config.InstanceConfig, 0, len(instances))
	for _, inst := range instances {
		cfgs = append(cfgs, inst.Config)
	}

	ps := PersistedState{LastUpdated: time.Now(), Instances: cfgs}

	content, err := yaml.Marshal(ps)
	if err != nil {
		return tmerr.Internal("serialize state").WithCause(err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return tmerr.IOError("create temp state file").WithCause(err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return tmerr.IOError("write state file").WithCause(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return tmerr.IOError("sync state file").WithCause(err)
	}
	if err := f.Close(); err != nil {
		return tmerr.IOError("close state file").WithCause(err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return tmerr.IOError("rename temp state file").WithCause(err)
	}

	log.Debug().Str("path", s.path).Int("instances", len(cfgs)).Msg("state saved")
	return nil
}

// Load reads the persisted state, returning a zero-value PersistedState if
// the file does not exist. A present-but-corrupt file is a hard error.
func (s *Store) Load() (PersistedState, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		log.Info().Msg("no state file found, starting fresh")
		return PersistedState{}, nil
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return PersistedState{}, tmerr.IOError("read state file").WithCause(err)
	}

	var ps PersistedState
	if err := yaml.Unmarshal(content, &ps); err != nil {
		return PersistedState{}, tmerr.InvalidConfig(
			"state file is corrupted; delete or fix it manually: " + filepath.Clean(s.path)).WithCause(err)
	}

	log.Info().Int("instances", len(ps.Instances)).Time("last_updated", ps.LastUpdated).Msg("state loaded from disk")
	return ps, nil
}

// Restore loads the state file and re-adds + starts each persisted
// instance. Per-instance failures are logged and counted but never abort
// the batch.
func (s *Store) Restore(binaryPath string) error {
	ps, err := s.Load()
	if err != nil {
		return err
	}

	if len(ps.Instances) == 0 {
		log.Info().Msg("no instances to restore")
		return nil
	}

	log.Info().Int("instances", len(ps.Instances)).Msg("restoring instances from state")

	var restored, failed int
	for _, cfg := range ps.Instances {
		inst, err := s.registry.Add(cfg)
		if err != nil {
			log.Error().Err(err).Str("instance", cfg.Name).Msg("failed to restore instance")
			failed++
			continue
		}
		if err := inst.Start(binaryPath); err != nil {
			log.Error().Err(err).Str("instance", cfg.Name).Msg("failed to start restored instance")
			failed++
			continue
		}
		restored++
	}

	log.Info().Int("restored", restored).Int("failed", failed).Msg("instance restoration complete")
	return nil
}
