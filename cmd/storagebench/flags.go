package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/runningwild/storagebench/pkg/config"
	"github.com/runningwild/storagebench/pkg/engine"
)

// Flags holds every benchmark flag shared by run, remote and fio-job.
type Flags struct {
	ConfigFile  string
	WriteConfig string

	Path      string
	TestType  string
	FileMB    int64
	BlockKB   int
	QD        int
	Duration  int
	Warmup    int
	Direct    bool
	Engine    string
	Runs      int
	Seed      int64
	OpTimeout time.Duration

	fs *pflag.FlagSet
}

func SetupFlags(fs *pflag.FlagSet) *Flags {
	def := config.Default()
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigFile, "config", "", "Path to a YAML config file; explicit flags override its values")
	fs.StringVar(&f.WriteConfig, "write-config", "", "Save the effective configuration to this YAML file")

	fs.StringVar(&f.Path, "path", def.Run.Path, "File to benchmark")
	fs.StringVar(&f.TestType, "type", string(def.Run.TestType), "SEQ_READ, SEQ_WRITE, RAND_READ or RAND_WRITE")
	fs.Int64Var(&f.FileMB, "file-mb", def.Run.FileSizeBytes>>20, "Size of the file area in MiB")
	fs.IntVar(&f.BlockKB, "block-kb", def.Run.BlockSizeBytes>>10, "Block size in KiB")
	fs.IntVar(&f.QD, "qd", def.Run.QueueDepth, "Outstanding requests")
	fs.IntVar(&f.Duration, "duration", def.Run.DurationSec, "Measured seconds")
	fs.IntVar(&f.Warmup, "warmup", def.Run.WarmupSec, "Unmeasured warmup seconds")
	fs.BoolVar(&f.Direct, "direct", def.Run.UseDirect, "Bypass the page cache when the filesystem allows it")
	fs.StringVar(&f.Engine, "engine", def.Settings.Engine, "Completion engine: auto, sync, uring or libaio")
	fs.IntVar(&f.Runs, "runs", def.Settings.Runs, "Sequential runs")
	fs.Int64Var(&f.Seed, "seed", 0, "Fixed seed for random workloads (default: fresh per run)")
	fs.DurationVar(&f.OpTimeout, "op-timeout", def.Settings.OpTimeout, "Per-operation timeout")
	return f
}

// LoadConfig starts from the config file (or the defaults) and applies
// every flag the user set explicitly.
func (f *Flags) LoadConfig() (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		cfg, err = config.Load(f.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	var err error
	f.fs.Visit(func(fl *pflag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "path":
			cfg.Run.Path = f.Path
		case "type":
			cfg.Run.TestType, err = engine.ParseTestType(f.TestType)
		case "file-mb":
			cfg.Run.FileSizeBytes = f.FileMB << 20
		case "block-kb":
			cfg.Run.BlockSizeBytes = f.BlockKB << 10
		case "qd":
			cfg.Run.QueueDepth = f.QD
		case "duration":
			cfg.Run.DurationSec = f.Duration
		case "warmup":
			cfg.Run.WarmupSec = f.Warmup
		case "direct":
			cfg.Run.UseDirect = f.Direct
		case "engine":
			_, err = engine.ParseKind(f.Engine)
			cfg.Settings.Engine = f.Engine
		case "runs":
			cfg.Settings.Runs = f.Runs
		case "seed":
			seed := f.Seed
			cfg.Settings.Seed = &seed
		case "op-timeout":
			cfg.Settings.OpTimeout = f.OpTimeout
		}
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) MaybeWriteConfig(cfg *config.Config) {
	if f.WriteConfig == "" {
		return
	}
	if err := cfg.Save(f.WriteConfig); err != nil {
		fmt.Printf("Warning: Failed to write config file: %v\n", err)
		return
	}
	fmt.Printf("Configuration written to %s\n", f.WriteConfig)
}
