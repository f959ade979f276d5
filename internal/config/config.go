// Package config loads and validates the fleet manager's configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nazq/tei-manager-sub000/internal/tmerr"
)

// InstanceConfig is the immutable, persistable description of one worker.
type InstanceConfig struct {
	Name                  string    `yaml:"name"`
	ModelID               string    `yaml:"model_id"`
	Port                  uint16    `yaml:"port"`
	MaxBatchTokens        uint32    `yaml:"max_batch_tokens"`
	MaxConcurrentRequests uint32    `yaml:"max_concurrent_requests"`
	Pooling               string    `yaml:"pooling,omitempty"`
	GPUID                 *uint32   `yaml:"gpu_id,omitempty"`
	PrometheusPort        uint16    `yaml:"prometheus_port,omitempty"`
	StartupTimeoutSecs    uint64    `yaml:"startup_timeout_secs,omitempty"`
	ExtraArgs             []string  `yaml:"extra_args,omitempty"`
	CreatedAt             time.Time `yaml:"created_at,omitempty"`
}

// AuthConfig describes the (pluggable, out-of-core) authentication boundary.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Providers []string `yaml:"providers,omitempty"`
}

// ManagerConfig is the top-level configuration for the fleet manager.
type ManagerConfig struct {
	APIPort                     uint16           `yaml:"api_port"`
	StateFile                   string           `yaml:"state_file"`
	HealthCheckIntervalSecs     uint64           `yaml:"health_check_interval_secs"`
	StartupTimeoutSecs          uint64           `yaml:"startup_timeout_secs"`
	MaxFailuresBeforeRestart    uint32           `yaml:"max_failures_before_restart"`
	GracefulShutdownTimeoutSecs uint64           `yaml:"graceful_shutdown_timeout_secs"`
	AutoRestoreOnRestart        bool             `yaml:"auto_restore_on_restart"`
	MaxInstances                *int             `yaml:"max_instances,omitempty"`
	InstancePortStart           uint16           `yaml:"instance_port_start"`
	InstancePortEnd             uint16           `yaml:"instance_port_end"`
	Instances                   []InstanceConfig `yaml:"instances,omitempty"`
	WorkerBinaryPath            string           `yaml:"worker_binary_path"`
	GRPCPort                    uint16           `yaml:"grpc_port"`
	GRPCEnabled                 bool             `yaml:"grpc_enabled"`
	GRPCMaxMessageSizeMB        int              `yaml:"grpc_max_message_size_mb"`
	GRPCMaxParallelStreams      int              `yaml:"grpc_max_parallel_streams"`
	GRPCRequestTimeoutSecs      uint64           `yaml:"grpc_request_timeout_secs"`
	Auth                        AuthConfig       `yaml:"auth,omitempty"`
}

// Default returns a ManagerConfig populated with the documented defaults.
func Default() ManagerConfig {
	return ManagerConfig{
		APIPort:                     9000,
		StateFile:                   "/data/tei-manager-state.yaml",
		HealthCheckIntervalSecs:     10,
		StartupTimeoutSecs:          300,
		MaxFailuresBeforeRestart:    3,
		GracefulShutdownTimeoutSecs: 30,
		AutoRestoreOnRestart:        false,
		MaxInstances:                nil,
		InstancePortStart:           8080,
		InstancePortEnd:             8180,
		WorkerBinaryPath:            "text-embeddings-router",
		GRPCPort:                    9001,
		GRPCEnabled:                 true,
		GRPCMaxMessageSizeMB:        40,
		GRPCMaxParallelStreams:      1024,
		GRPCRequestTimeoutSecs:      30,
	}
}

// Load reads configuration from path (if non-empty), applies environment
// variable overrides, and returns the result. Callers must still call
// Validate.
func Load(path string) (ManagerConfig, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, tmerr.IOError(fmt.Sprintf("read config file %q: %v", path, err)).WithCause(err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, tmerr.InvalidConfig(fmt.Sprintf("parse config file %q: %v", path, err)).WithCause(err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *ManagerConfig) error {
	if v, ok := os.LookupEnv("TEI_MANAGER_API_PORT"); ok {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return tmerr.InvalidConfig("invalid TEI_MANAGER_API_PORT value").WithCause(err)
		}
		cfg.APIPort = uint16(p)
	}
	if v, ok := os.LookupEnv("TEI_MANAGER_STATE_FILE"); ok {
		cfg.StateFile = v
	}
	if v, ok := os.LookupEnv("TEI_MANAGER_HEALTH_CHECK_INTERVAL"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return tmerr.InvalidConfig("invalid TEI_MANAGER_HEALTH_CHECK_INTERVAL value").WithCause(err)
		}
		cfg.HealthCheckIntervalSecs = n
	}
	if v, ok := os.LookupEnv("TEI_BINARY_PATH"); ok {
		cfg.WorkerBinaryPath = v
	}
	if v, ok := os.LookupEnv("TEI_MANAGER_GRPC_PORT"); ok {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return tmerr.InvalidConfig("invalid TEI_MANAGER_GRPC_PORT value").WithCause(err)
		}
		cfg.GRPCPort = uint16(p)
	}
	if v, ok := os.LookupEnv("TEI_MANAGER_GRPC_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return tmerr.InvalidConfig("invalid TEI_MANAGER_GRPC_ENABLED value").WithCause(err)
		}
		cfg.GRPCEnabled = b
	}
	return nil
}

// Validate enforces the rules in SS6 of SPEC_FULL.md.
func (c ManagerConfig) Validate() error {
	if c.APIPort < 1024 {
		return tmerr.InvalidPort(c.APIPort, "api_port must be >= 1024")
	}
	if c.InstancePortStart < 1024 {
		return tmerr.InvalidPort(c.InstancePortStart, "instance_port_start must be >= 1024")
	}
	if c.InstancePortEnd <= c.InstancePortStart {
		return tmerr.InvalidConfig(fmt.Sprintf(
			"instance_port_end (%d) must be greater than instance_port_start (%d)",
			c.InstancePortEnd, c.InstancePortStart))
	}

	portRangeSize := int(c.InstancePortEnd - c.InstancePortStart)
	if c.MaxInstances != nil && portRangeSize < *c.MaxInstances {
		return tmerr.InvalidConfig(fmt.Sprintf(
			"port range [%d, %d) only has %d ports but max_instances is %d",
			c.InstancePortStart, c.InstancePortEnd, portRangeSize, *c.MaxInstances))
	}

	names := make(map[string]bool, len(c.Instances))
	ports := make(map[uint16]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if inst.Name == "" {
			return tmerr.InvalidInstanceName(inst.Name, "name must not be empty")
		}
		if strings.ContainsAny(inst.Name, "/\\") {
			return tmerr.InvalidInstanceName(inst.Name, "name must not contain path separators")
		}
		if names[inst.Name] {
			return tmerr.InvalidConfig(fmt.Sprintf("duplicate instance name %q", inst.Name))
		}
		names[inst.Name] = true

		if inst.Port < 1024 {
			return tmerr.InvalidPort(inst.Port, fmt.Sprintf("instance %q port must be >= 1024", inst.Name))
		}
		if inst.Port == c.APIPort {
			return tmerr.InvalidConfig(fmt.Sprintf("instance %q port %d conflicts with api port", inst.Name, inst.Port))
		}
		if c.GRPCEnabled && inst.Port == c.GRPCPort {
			return tmerr.InvalidConfig(fmt.Sprintf("instance %q port %d conflicts with grpc port", inst.Name, inst.Port))
		}
		if ports[inst.Port] {
			return tmerr.InvalidConfig(fmt.Sprintf("duplicate port %d in instance configs", inst.Port))
		}
		ports[inst.Port] = true
	}

	if c.Auth.Enabled && len(c.Auth.Providers) == 0 {
		return tmerr.InvalidConfig("auth.enabled is true but no providers configured")
	}

	return nil
}
