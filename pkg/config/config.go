package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runningwild/storagebench/pkg/engine"
)

// Config is a benchmark description as stored on disk.
type Config struct {
	Run      engine.RunConfig `yaml:"run"`
	Settings Settings         `yaml:"settings"`
}

type Settings struct {
	Engine        string        `yaml:"engine"`         // "auto", "sync", "uring" or "libaio"
	RetryLimit    *int          `yaml:"retry_limit"`    // reissues per failed operation
	AbortFraction float64       `yaml:"abort_fraction"` // dropped/issued ratio that aborts a run
	OpTimeout     time.Duration `yaml:"op_timeout"`
	Seed          *int64        `yaml:"seed,omitempty"` // fixed random workload seed
	Runs          int           `yaml:"runs"`           // sequential runs per session
}

// Default returns the config the CLI starts from when no file is given.
func Default() *Config {
	cfg := &Config{
		Run: engine.RunConfig{
			Path:           "bench_test.bin",
			TestType:       engine.SeqRead,
			FileSizeBytes:  2048 << 20,
			BlockSizeBytes: 128 << 10,
			QueueDepth:     4,
			DurationSec:    20,
			WarmupSec:      3,
			UseDirect:      true,
		},
	}
	cfg.setDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Run.TestType != "" {
		tt, err := engine.ParseTestType(string(cfg.Run.TestType))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Run.TestType = tt
	}
	if _, err := engine.ParseKind(cfg.Settings.Engine); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Settings.Engine == "" {
		c.Settings.Engine = string(engine.KindAuto)
	}
	if c.Settings.RetryLimit == nil {
		n := engine.DefaultRetryLimit
		c.Settings.RetryLimit = &n
	}
	if c.Settings.AbortFraction == 0 {
		c.Settings.AbortFraction = engine.DefaultAbortFraction
	}
	if c.Settings.OpTimeout == 0 {
		c.Settings.OpTimeout = engine.DefaultOpTimeout
	}
	if c.Settings.Runs == 0 {
		c.Settings.Runs = 3
	}
}

// Save writes the config as YAML, for -write-config.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Options turns the settings into engine options.
func (c *Config) Options() ([]engine.Option, error) {
	kind, err := engine.ParseKind(c.Settings.Engine)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithBackend(kind),
		engine.WithAbortFraction(c.Settings.AbortFraction),
		engine.WithOpTimeout(c.Settings.OpTimeout),
	}
	if c.Settings.RetryLimit != nil {
		opts = append(opts, engine.WithRetryLimit(*c.Settings.RetryLimit))
	}
	if c.Settings.Seed != nil {
		opts = append(opts, engine.WithSeed(*c.Settings.Seed))
	}
	return opts, nil
}
