// ABOUTME: Configuration loaded from SPECD_* environment variables, flags, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the daemon's startup configuration: where specs live on
// disk, how actors are sized, and when snapshots fire.
type Config struct {
	DataRoot             string        `mapstructure:"data_root"`
	MailboxSize          int           `mapstructure:"mailbox_size"`
	BroadcastBufferSize  int           `mapstructure:"broadcast_buffer_size"`
	SnapshotEveryNEvents uint64        `mapstructure:"snapshot_every_n_events"`
	SnapshotInterval     time.Duration `mapstructure:"snapshot_interval"`
	LogLevel             string        `mapstructure:"log_level"`
}

// Load layers flags over SPECD_* environment variables over defaults, per
// the standard viper precedence order.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPECD")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/tmp"
		}
		cfg.DataRoot = filepath.Join(home, ".specd")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", "")
	v.SetDefault("mailbox_size", 64)
	v.SetDefault("broadcast_buffer_size", 4096)
	v.SetDefault("snapshot_every_n_events", uint64(100))
	v.SetDefault("snapshot_interval", 5*time.Minute)
	v.SetDefault("log_level", "info")
}
