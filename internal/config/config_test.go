package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.RetryThreshold != 3 {
		t.Fatalf("retry threshold = %d, want 3", cfg.Scheduler.RetryThreshold)
	}
	if cfg.Scheduler.InfoCooldown != 24*time.Hour {
		t.Fatalf("info cooldown = %v, want 24h", cfg.Scheduler.InfoCooldown)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Fatalf("tick interval = %v, want 1m", cfg.Scheduler.TickInterval)
	}
	if cfg.Alert.AccessToken != "" || cfg.Alert.Secret != "" {
		t.Fatalf("expected no default webhook credentials, got %+v", cfg.Alert)
	}
	if cfg.Lookup.DomainSource != DomainSourceRDAP {
		t.Fatalf("domain source = %q", cfg.Lookup.DomainSource)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
scheduler:
  retry_threshold: 5
  check_timeout: 3s
alert:
  timezone: Asia/Shanghai
monitors:
  - name: example
    url: https://example.com
    interval: 60
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DINGTALK_ACCESS_TOKEN", "tok")
	t.Setenv("DINGTALK_SECRET", "sec")
	t.Setenv("SENTINEL_SCHEDULER_INFO_COOLDOWN", "6h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.RetryThreshold != 5 || cfg.Scheduler.CheckTimeout != 3*time.Second {
		t.Fatalf("scheduler config not read from file: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.InfoCooldown != 6*time.Hour {
		t.Fatalf("env override not applied: %v", cfg.Scheduler.InfoCooldown)
	}
	if cfg.Alert.AccessToken != "tok" || cfg.Alert.Secret != "sec" {
		t.Fatalf("webhook credentials not read from env: %+v", cfg.Alert)
	}
	if len(cfg.Monitors) != 1 || cfg.Monitors[0].URL != "https://example.com" {
		t.Fatalf("monitors seed wrong: %+v", cfg.Monitors)
	}
}

func TestValidate_Rejects(t *testing.T) {
	base := func() Config {
		return Config{
			Scheduler: SchedulerConfig{TickInterval: time.Minute, CheckTimeout: time.Second, RetryThreshold: 3, InfoCooldown: time.Hour},
			Alert:     AlertConfig{Timezone: "UTC", Timeout: time.Second},
			Lookup:    LookupConfig{DomainSource: DomainSourceRDAP, Timeout: time.Second},
		}
	}

	good := base()
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"threshold": func(c *Config) { c.Scheduler.RetryThreshold = 0 },
		"timeout":   func(c *Config) { c.Scheduler.CheckTimeout = 0 },
		"source":    func(c *Config) { c.Lookup.DomainSource = "dns" },
		"timezone":  func(c *Config) { c.Alert.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		c := base()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
