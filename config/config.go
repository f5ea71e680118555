package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"EmberDB/logger"
)

const (
	// DefaultPageSize is the base page size; pages grow through size
	// classes in powers of two above it before the tree splits them.
	DefaultPageSize = 4096

	// DefaultCacheSize is the buffer pool budget handed to each size
	// class region when the caller does not specify one.
	DefaultCacheSize = 1024 * 1024
)

// Options configures an engine instance. Zero values are replaced with
// defaults by Normalize, so Options{} is a valid starting point.
type Options struct {
	// PageSize is the base (smallest size class) page size in bytes.
	// Must be a power of two. Fixed at creation time; reopening a store
	// with a different value fails.
	PageSize int `yaml:"page_size"`

	// CacheSize is the requested buffer pool budget in bytes. Each size
	// class region gets the next power of two of this value, min 64 KiB.
	CacheSize int `yaml:"cache_size"`

	// Log configures the engine logger. Ignored when Logger is set
	// programmatically on Open.
	Log logger.Config `yaml:"log"`
}

// Normalize fills in defaults and validates the result.
func (o *Options) Normalize() error {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.PageSize&(o.PageSize-1) != 0 {
		return fmt.Errorf("page size %d is not a power of two", o.PageSize)
	}
	if o.PageSize < 512 {
		return fmt.Errorf("page size %d is below the 512 byte minimum", o.PageSize)
	}
	return nil
}

// Load reads Options from a YAML file. A missing file yields defaults.
func Load(path string) (*Options, error) {
	opts := &Options{}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(opts); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	return opts, nil
}
