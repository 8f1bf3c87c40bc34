package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ServerConfig controls the controller's HTTP submit endpoint.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SurrealConfig describes the shared SurrealDB connection used for
// JobStore, NodeStore and both queues.
type SurrealConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ComputeConfig describes the AWS EC2 surface the autoscaler and node
// identity resolver use.
type ComputeConfig struct {
	Region          string   `toml:"region"`
	AMIID           string   `toml:"ami_id"`
	InstanceType    string   `toml:"instance_type"`
	SecurityGroups  []string `toml:"security_groups"`
	KeyName         string   `toml:"key_name"`
	LocalDevAllowed bool     `toml:"local_dev_allowed"`
}

// LoggingConfig controls the arbor-backed Logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// JobsConfig holds every knob named in the configuration table: node
// capacity, queue polling cadence, idle/abandon thresholds, and the
// encoder/storage-backend registries.
type JobsConfig struct {
	MaxJobsPerNode         int               `toml:"max_jobs_per_node"`
	MaxNodes               int               `toml:"max_nodes"`
	JobOverflowThreshold   int               `toml:"job_overflow_threshold"`
	NewJobCheckInterval    string            `toml:"new_job_check_interval"`
	HeartbeatInterval      string            `toml:"heartbeat_interval"`
	IdleThreshold          string            `toml:"idle_threshold"`
	IdleTerminationEnabled bool              `toml:"idle_termination_enabled"`
	StateChangeInterval    string            `toml:"state_change_interval"`
	PruneInterval          string            `toml:"prune_interval"`
	AutoscaleInterval      string            `toml:"autoscale_interval"`
	AbandonThreshold       string            `toml:"abandon_threshold"`
	AutoscaleEnabled       bool              `toml:"autoscale_enabled"`
	StorageBackends        map[string]string `toml:"storage_backends"`
	Encoders               map[string]string `toml:"encoders"`
}

// Config is the root configuration for both feederd and nommerd.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Surreal     SurrealConfig `toml:"surreal"`
	Compute     ComputeConfig `toml:"compute"`
	Logging     LoggingConfig `toml:"logging"`
	Jobs        JobsConfig    `toml:"jobs"`
}

// NewDefaultConfig returns a Config with sane development defaults,
// mirroring the default values named in the configuration table.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Surreal: SurrealConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "nommer",
			Database:  "nommer",
			Username:  "root",
			Password:  "root",
		},
		Compute: ComputeConfig{
			Region:          "us-east-1",
			InstanceType:    "m5.large",
			LocalDevAllowed: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Jobs: JobsConfig{
			MaxJobsPerNode:         4,
			MaxNodes:               20,
			JobOverflowThreshold:   2,
			NewJobCheckInterval:    "60s",
			HeartbeatInterval:      "60s",
			IdleThreshold:          "10m",
			IdleTerminationEnabled: true,
			StateChangeInterval:    "60s",
			PruneInterval:          "300s",
			AutoscaleInterval:      "60s",
			AbandonThreshold:       "24h",
			AutoscaleEnabled:       true,
			StorageBackends:        map[string]string{},
			Encoders:               map[string]string{},
		},
	}
}

// LoadConfig reads a TOML config file and applies NOMMER_* environment
// overrides on top of it, the same precedence order the teacher's
// config loader uses.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOMMER_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("NOMMER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NOMMER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NOMMER_SURREAL_ADDRESS"); v != "" {
		cfg.Surreal.Address = v
	}
	if v := os.Getenv("NOMMER_SURREAL_NAMESPACE"); v != "" {
		cfg.Surreal.Namespace = v
	}
	if v := os.Getenv("NOMMER_SURREAL_DATABASE"); v != "" {
		cfg.Surreal.Database = v
	}
	if v := os.Getenv("NOMMER_SURREAL_USERNAME"); v != "" {
		cfg.Surreal.Username = v
	}
	if v := os.Getenv("NOMMER_SURREAL_PASSWORD"); v != "" {
		cfg.Surreal.Password = v
	}
	if v := os.Getenv("NOMMER_COMPUTE_REGION"); v != "" {
		cfg.Compute.Region = v
	}
	if v := os.Getenv("NOMMER_COMPUTE_AMI_ID"); v != "" {
		cfg.Compute.AMIID = v
	}
	if v := os.Getenv("NOMMER_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOMMER_MAX_JOBS_PER_NODE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.MaxJobsPerNode = n
		}
	}
	if v := os.Getenv("NOMMER_MAX_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.MaxNodes = n
		}
	}
	if v := os.Getenv("NOMMER_AUTOSCALE_ENABLED"); v != "" {
		cfg.Jobs.AutoscaleEnabled = strings.EqualFold(v, "true")
	}
}

// durationOrDefault parses a duration string, falling back to def when
// s is empty or malformed. Every Get* below uses this so a bad config
// value degrades to a known-good interval instead of failing startup.
func durationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func (j JobsConfig) GetNewJobCheckInterval() time.Duration {
	return durationOrDefault(j.NewJobCheckInterval, 60*time.Second)
}

func (j JobsConfig) GetHeartbeatInterval() time.Duration {
	return durationOrDefault(j.HeartbeatInterval, 60*time.Second)
}

func (j JobsConfig) GetIdleThreshold() time.Duration {
	return durationOrDefault(j.IdleThreshold, 10*time.Minute)
}

func (j JobsConfig) GetStateChangeInterval() time.Duration {
	return durationOrDefault(j.StateChangeInterval, 60*time.Second)
}

func (j JobsConfig) GetPruneInterval() time.Duration {
	return durationOrDefault(j.PruneInterval, 300*time.Second)
}

func (j JobsConfig) GetAutoscaleInterval() time.Duration {
	return durationOrDefault(j.AutoscaleInterval, 60*time.Second)
}

func (j JobsConfig) GetAbandonThreshold() time.Duration {
	return durationOrDefault(j.AbandonThreshold, 24*time.Hour)
}
