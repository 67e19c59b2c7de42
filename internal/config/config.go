// Package config is used to load the configuration file
package config

import (
	"fmt"

	"github.com/blacktop/ropcat/pkg/gadget"
	"github.com/spf13/viper"
)

const (
	// DefaultLimit is the number of gadgets kept per subcategory
	DefaultLimit = 2
	// DefaultMaxSize is the maximum gadget size requested from the gadget finder
	DefaultMaxSize = 5
	// DefaultFinder is the gadget finder executable looked up in $PATH
	DefaultFinder = "rp-lin"
)

type classify struct {
	Limit    int      `mapstructure:"limit"`
	Ignore   []string `mapstructure:"ignore"`
	MaxSize  int      `mapstructure:"max-size"`
	BadBytes string   `mapstructure:"bad-bytes"`
	Finder   string   `mapstructure:"rp"`
	Catalog  string   `mapstructure:"catalog"`
	Disable  []string `mapstructure:"disable"`
	JSON     bool     `mapstructure:"json"`
}

// Config is the configuration struct
type Config struct {
	Verbose  bool     `mapstructure:"verbose"`
	Color    bool     `mapstructure:"color"`
	NoColor  bool     `mapstructure:"no-color"`
	Classify classify `mapstructure:"classify"`
}

func (c *Config) verify() error {
	if c.Classify.Limit < 1 {
		return fmt.Errorf("limit must be at least 1 (got %d)", c.Classify.Limit)
	}
	if c.Classify.MaxSize < 0 {
		return fmt.Errorf("max-size cannot be negative (got %d)", c.Classify.MaxSize)
	}
	if c.Classify.Ignore == nil {
		c.Classify.Ignore = gadget.DefaultIgnore
	}
	if c.Classify.Finder == "" {
		c.Classify.Finder = DefaultFinder
	}
	return nil
}

// SetDefaults registers the default values with viper
func SetDefaults(v *viper.Viper) {
	v.SetDefault("classify.limit", DefaultLimit)
	v.SetDefault("classify.max-size", DefaultMaxSize)
	v.SetDefault("classify.ignore", gadget.DefaultIgnore)
	v.SetDefault("classify.rp", DefaultFinder)
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load unmarshals and verifies the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return &c, nil
}
