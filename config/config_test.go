package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("SPECD_DATA_ROOT", "")
	t.Setenv("SPECD_MAILBOX_SIZE", "")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataRoot == "" {
		t.Error("expected a non-empty default data root")
	}
	if cfg.MailboxSize != 64 {
		t.Errorf("MailboxSize = %d, want 64", cfg.MailboxSize)
	}
	if cfg.SnapshotInterval != 5*time.Minute {
		t.Errorf("SnapshotInterval = %s, want 5m", cfg.SnapshotInterval)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("SPECD_MAILBOX_SIZE", "128")
	t.Setenv("SPECD_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MailboxSize != 128 {
		t.Errorf("MailboxSize = %d, want 128", cfg.MailboxSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("SPECD_MAILBOX_SIZE", "128")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("mailbox_size", 64, "")
	if err := flags.Set("mailbox_size", "256"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MailboxSize != 256 {
		t.Errorf("MailboxSize = %d, want 256 (flag should win over env)", cfg.MailboxSize)
	}
}
