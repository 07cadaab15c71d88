// Package config holds the runtime settings and the JSON world description.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Settings holds the runtime configuration of railnet serve.
// Values come from defaults, RAILNET_* env vars, and CLI flags bound by cmd/railnet.
type Settings struct {
	// Listen is the address of the viewer and API server.
	Listen string        `mapstructure:"listen"`
	Tick   time.Duration `mapstructure:"tick"`
	// DB is the buntdb file the world is persisted to. ":memory:" keeps nothing.
	DB string `mapstructure:"db"`
	// World is a JSON layout file. When set, it is loaded on start and watched for changes.
	World    string `mapstructure:"world"`
	LogLevel string `mapstructure:"log_level"`
	// Trace is a file every viewer-sync event is appended to. Empty disables tracing.
	Trace       string   `mapstructure:"trace"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads the settings from viper, applying defaults for anything not set by env or flags.
func Load() (Settings, error) {
	viper.SetEnvPrefix("RAILNET")
	viper.AutomaticEnv()
	viper.SetDefault("listen", "localhost:8080")
	viper.SetDefault("tick", 100*time.Millisecond)
	viper.SetDefault("db", ":memory:")
	viper.SetDefault("world", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("trace", "")
	viper.SetDefault("cors_origins", []string{"*"})

	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
