package config

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override, so
// cache.clusters is read from NEBFS_CACHE_CLUSTERS.
const EnvPrefix = "NEBFS"

// Config holds app configuration
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// CommonKeyFile holds the raw or hex encoded common key. If empty,
	// common.key next to the input is tried
	CommonKeyFile string `mapstructure:"common_key"`

	Cache   Cache   `mapstructure:"cache"`
	Extract Extract `mapstructure:"extract"`
}

type Cache struct {
	// Clusters is how many decrypted WBFS clusters are kept in memory
	Clusters int `mapstructure:"clusters"`
}

type Extract struct {
	Workers int `mapstructure:"workers"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("cache.clusters", 256)
	v.SetDefault("extract.workers", 4)
}

// Load reads the optional config file through fs, applies environment
// overrides and decodes the result. Flags bound to v before calling Load
// take precedence over both.
func Load(v *viper.Viper, fs afero.Fs, file string) (*Config, error) {
	v.SetFs(fs)
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Cache.Clusters < 1 {
		return nil, fmt.Errorf("cache.clusters must be positive, got %d", cfg.Cache.Clusters)
	}
	if cfg.Extract.Workers < 1 {
		return nil, fmt.Errorf("extract.workers must be positive, got %d", cfg.Extract.Workers)
	}

	return cfg, nil
}
