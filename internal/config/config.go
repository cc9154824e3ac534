// Package config loads the daemon's tunables from environment variables
// and an optional TOML file in the runtime directory.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every daemon tunable. Defaults match the behavior described
// for the multiplexer: a 30s reap sweep, a 2s SIGTERM-to-SIGKILL grace
// period, and a 1 MiB frame ceiling. The daemon applies ReapInterval and
// LogLevel only; KillGracePeriod and MaxFrameBytes are loaded but not used,
// and the session kill grace period and protocol frame limit stay fixed at
// 2s and 1 MiB.
type Config struct {
	ReapInterval    time.Duration
	KillGracePeriod time.Duration
	MaxFrameBytes   int
	LogLevel        string
}

// Load reads configuration from AMUX_*-prefixed environment variables and,
// if present, <configDir>/config.toml, falling back to defaults for
// anything unset.
func Load(configDir string) (Config, error) {
	v := viper.New()

	v.SetDefault("reap_interval_secs", 30)
	v.SetDefault("kill_grace_period_secs", 2)
	v.SetDefault("max_frame_bytes", 1<<20)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("amux")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, err
			}
		}
	}

	return Config{
		ReapInterval:    time.Duration(v.GetInt("reap_interval_secs")) * time.Second,
		KillGracePeriod: time.Duration(v.GetInt("kill_grace_period_secs")) * time.Second,
		MaxFrameBytes:   v.GetInt("max_frame_bytes"),
		LogLevel:        v.GetString("log_level"),
	}, nil
}
