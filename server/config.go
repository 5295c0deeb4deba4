package server

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/janelia-flyem/voxflow/cache"
	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/storage"

	"github.com/BurntSushi/toml"
)

const (
	// Version of the voxflow pipeline and its persisted formats.
	Version = "0.1.0"

	// DefaultGroup is the group used for persisted cache state and exported datasets.
	DefaultGroup = "voxflow"

	// DefaultBucket is the export destination when none is configured.
	DefaultBucket = "mem://"
)

// Config is the parsed TOML configuration.
type Config struct {
	Logging  dvid.LogConfig
	Cache    CacheConfig
	Pool     PoolConfig
	Store    StoreConfig
	Export   ExportConfig
	Kafka    storage.KafkaConfig
	Pipeline PipelineConfig

	location string
}

// CacheConfig bounds memory used by each blocked cache.
type CacheConfig struct {
	BudgetMB     int    `toml:"budget_mb"`     // 0 = unbounded
	CompressedMB int    `toml:"compressed_mb"` // 0 = no compressed tier
	Compression  string // "snappy", "zstd" or "none"
}

// PoolConfig sizes the request scheduler.
type PoolConfig struct {
	Workers int // 0 = number of CPUs
}

// StoreConfig selects the key-value store holding persisted cache state.
type StoreConfig struct {
	Engine  string // "memory" or "badger"
	Path    string
	Group   string
	Options map[string]interface{}
}

// ExportConfig gives the bucket receiving exported outputs.
type ExportConfig struct {
	Bucket      string
	Group       string
	Compression string
	Outputs     []string // names of pipeline outputs; empty exports all
}

// PipelineConfig parameterizes the MRI volume filter.
type PipelineConfig struct {
	// Input is a dataset name in the export bucket holding "txyzc" class probabilities.
	// With no input a synthetic volume of SyntheticShape is generated.
	Input          string
	SyntheticShape []int `toml:"synthetic_shape"`

	Method         string
	Sigma          float64
	Threshold      int
	NumChannels    int   `toml:"num_channels"`
	ActiveChannels []int `toml:"active_channels"`
}

// DefaultConfig returns the configuration used for settings absent from the TOML file.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{Compression: "snappy"},
		Store: StoreConfig{Engine: "memory", Group: DefaultGroup},
		Export: ExportConfig{
			Bucket:      DefaultBucket,
			Group:       DefaultGroup,
			Compression: "zstd",
		},
		Pipeline: PipelineConfig{
			SyntheticShape: []int{1, 64, 64, 16, 3},
			Method:         "gaussian",
			Sigma:          1.2,
			Threshold:      3000,
			NumChannels:    3,
		},
	}
}

// LoadConfig loads configuration from a TOML file on top of the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := DefaultConfig()
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dvid.Infof("Loaded configuration from %s\n", filename)
	return &c, nil
}

// Location returns the file the configuration was loaded from.
func (c *Config) Location() string {
	return c.location
}

func convertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}

// Some settings in the TOML can be given as relative paths.  This function converts
// them in-place to absolute paths, assuming the given paths were relative to the TOML
// file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = convertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting logfile setting to absolute path")
		}
	}

	// [store].path
	if c.Store.Path != "" {
		c.Store.Path, err = convertToAbsolute(c.Store.Path, configDir)
		if err != nil {
			return fmt.Errorf("Error converting store path %q to absolute path", c.Store.Path)
		}
	}

	// [export].bucket given as file:// with a relative directory
	if rel := strings.TrimPrefix(c.Export.Bucket, "file://"); rel != c.Export.Bucket && !strings.HasPrefix(rel, "/") {
		dir, err := convertToAbsolute(rel, configDir)
		if err != nil {
			return fmt.Errorf("Error converting export bucket %q to absolute path", c.Export.Bucket)
		}
		c.Export.Bucket = "file://" + filepath.ToSlash(dir)
	}
	return nil
}

// Validate checks settings that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if _, err := dvid.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("[logging] %w", err)
	}
	if _, err := dvid.ParseCompression(c.Cache.Compression); err != nil {
		return fmt.Errorf("[cache] %w", err)
	}
	if _, err := dvid.ParseCompression(c.Export.Compression); err != nil {
		return fmt.Errorf("[export] %w", err)
	}
	if c.Cache.BudgetMB < 0 || c.Cache.CompressedMB < 0 || c.Pool.Workers < 0 {
		return dvid.ConfigErrorf("cache sizes and worker count must not be negative")
	}
	if c.Store.Engine != "" && storage.GetEngine(c.Store.Engine) == nil {
		return dvid.ConfigErrorf("[store] engine %q not available (have %s)", c.Store.Engine, storage.EnginesAvailable())
	}
	p := c.Pipeline
	if p.Input == "" && len(p.SyntheticShape) != 5 {
		return dvid.ConfigErrorf("[pipeline] synthetic_shape must give t, x, y, z and c extents: %v", p.SyntheticShape)
	}
	if p.ActiveChannels != nil && p.NumChannels != 0 && len(p.ActiveChannels) != p.NumChannels {
		return dvid.ConfigErrorf("[pipeline] %d active channel flags for %d channels", len(p.ActiveChannels), p.NumChannels)
	}
	return nil
}

// CacheSettings converts the [cache] section.
func (c *Config) CacheSettings() cache.Config {
	compress, _ := dvid.ParseCompression(c.Cache.Compression)
	return cache.Config{
		BudgetBytes:     int64(c.Cache.BudgetMB) * 1000000,
		CompressedBytes: c.Cache.CompressedMB * 1000000,
		Compression:     compress,
	}
}

// Workers returns the scheduler size.
func (c *Config) Workers() int {
	if c.Pool.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Pool.Workers
}

// StoreSettings converts the [store] section.
func (c *Config) StoreSettings() storage.StoreConfig {
	return storage.StoreConfig{Engine: c.Store.Engine, Path: c.Store.Path, Options: c.Store.Options}
}
