package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// Config is the controller configuration.
type Config struct {
	HTTPAddr string `json:"httpAddr" envconfig:"HTTP_ADDR"`
	// GRPCAddr serves the farm.v1.Farm service; empty disables it.
	GRPCAddr string `json:"grpcAddr" envconfig:"GRPC_ADDR"`
	DataDir  string `json:"dataDir" envconfig:"DATA_DIR"`
	InMemory bool   `json:"inMemory" envconfig:"IN_MEMORY"`
	// Fsync is "always", "interval" or "never".
	Fsync string `json:"fsync" envconfig:"FSYNC"`

	Scheduler SchedulerConfig `json:"scheduler" envconfig:"SCHEDULER"`
	Journal   JournalConfig   `json:"journal" envconfig:"JOURNAL"`

	// Processors run inside the controller. File-only.
	Processors []ProcessorConfig `json:"processors" ignored:"true"`
	// LocalProcessors adds that many attribute-less processors.
	LocalProcessors int `json:"localProcessors" envconfig:"LOCAL_PROCESSORS"`

	Log LogConfig `json:"log" envconfig:"LOG"`
}

// SchedulerConfig tunes dispatch.
type SchedulerConfig struct {
	Lanes           int `json:"lanes" envconfig:"LANES"`
	DefaultPriority int `json:"defaultPriority" envconfig:"DEFAULT_PRIORITY"`
	// ClientPriorities maps client ids to lanes, "CL1:0,CL2:1" in env form.
	ClientPriorities map[string]int `json:"clientPriorities" envconfig:"CLIENT_PRIORITIES"`
	// SyncTimeout bounds synchronous HTTP submissions that give no timeout.
	SyncTimeout Duration `json:"syncTimeout" envconfig:"SYNC_TIMEOUT"`
	// PollWait is how long a remote processor poll waits for work.
	PollWait             Duration `json:"pollWait" envconfig:"POLL_WAIT"`
	RequirementCacheTTL  Duration `json:"requirementCacheTTL" envconfig:"REQUIREMENT_CACHE_TTL"`
	RequirementCacheSize int      `json:"requirementCacheSize" envconfig:"REQUIREMENT_CACHE_SIZE"`
}

// JournalConfig bounds the completion journal.
type JournalConfig struct {
	Enabled      bool     `json:"enabled" envconfig:"ENABLED"`
	MaxAge       Duration `json:"maxAge" envconfig:"MAX_AGE"`
	MaxEntries   int      `json:"maxEntries" envconfig:"MAX_ENTRIES"`
	TrimInterval Duration `json:"trimInterval" envconfig:"TRIM_INTERVAL"`
}

// ProcessorConfig describes one in-process processor.
type ProcessorConfig struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// LogConfig selects level and format for pkg/log. Redact lists field keys
// whose values are masked. With a positive SampleThereafter, the first
// SampleInitial entries of each level and message are kept, then every
// SampleThereafter-th one.
type LogConfig struct {
	Level            string   `json:"level" envconfig:"LEVEL"`
	Format           string   `json:"format" envconfig:"FORMAT"`
	Redact           []string `json:"redact,omitempty" envconfig:"REDACT"`
	SampleInitial    int      `json:"sampleInitial,omitempty" envconfig:"SAMPLE_INITIAL"`
	SampleThereafter int      `json:"sampleThereafter,omitempty" envconfig:"SAMPLE_THEREAFTER"`
}

// Logger returns the pkg/log setup for c.
func (c LogConfig) Logger() *log.Config {
	return &log.Config{
		Level:      c.Level,
		Format:     c.Format,
		Redact:     c.Redact,
		SampleInit: c.SampleInitial,
		SampleNext: c.SampleThereafter,
	}
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		DataDir:  DefaultDataDir(),
		Fsync:    "interval",
		Scheduler: SchedulerConfig{
			Lanes:                4,
			DefaultPriority:      1,
			SyncTimeout:          Duration(30 * time.Second),
			PollWait:             Duration(20 * time.Second),
			RequirementCacheTTL:  Duration(10 * time.Minute),
			RequirementCacheSize: 1024,
		},
		Journal: JournalConfig{
			Enabled:      true,
			MaxAge:       Duration(24 * time.Hour),
			MaxEntries:   100000,
			TrimInterval: Duration(time.Minute),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a JSON file over the defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and required fields.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("httpAddr is required"))
	}
	if c.DataDir == "" && !c.InMemory {
		errs = append(errs, errors.New("dataDir is required unless inMemory is set"))
	}
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("fsync %q must be always, interval or never", c.Fsync))
	}
	s := c.Scheduler
	if s.Lanes < 1 || s.Lanes > 16 {
		errs = append(errs, fmt.Errorf("scheduler.lanes %d out of range [1,16]", s.Lanes))
	} else {
		if s.DefaultPriority < 0 || s.DefaultPriority >= s.Lanes {
			errs = append(errs, fmt.Errorf("scheduler.defaultPriority %d out of range [0,%d)", s.DefaultPriority, s.Lanes))
		}
		for client, p := range s.ClientPriorities {
			if p < 0 || p >= s.Lanes {
				errs = append(errs, fmt.Errorf("scheduler.clientPriorities[%s] %d out of range [0,%d)", client, p, s.Lanes))
			}
		}
	}
	seen := map[string]bool{}
	for i, p := range c.Processors {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("processors[%d].id is required", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Errorf("processors[%d].id %q duplicated", i, p.ID))
		}
		seen[p.ID] = true
	}
	if c.LocalProcessors < 0 {
		errs = append(errs, errors.New("localProcessors must not be negative"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.SampleInitial < 0 || c.Log.SampleThereafter < 0 {
		errs = append(errs, errors.New("log sampling counts must not be negative"))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as "30s" in JSON and env.
type Duration time.Duration

// D returns the time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
