package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Mimir     MimirConfig     `mapstructure:"mimir"`
	Log       LogConfig       `mapstructure:"log"`
	Monitors  []MonitorSeed   `mapstructure:"monitors"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

type SchedulerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	CheckTimeout   time.Duration `mapstructure:"check_timeout"`
	RetryThreshold int           `mapstructure:"retry_threshold"`
	InfoCooldown   time.Duration `mapstructure:"info_cooldown"`
	InfoTimeout    time.Duration `mapstructure:"info_timeout"`
}

// AlertConfig holds the chat-bot webhook credentials. There are no built-in
// credentials; an empty token or secret disables delivery.
type AlertConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	AccessToken string        `mapstructure:"access_token"`
	Secret      string        `mapstructure:"secret"`
	Timezone    string        `mapstructure:"timezone"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LookupConfig struct {
	CTURL         string        `mapstructure:"ct_url"`
	RDAPURL       string        `mapstructure:"rdap_url"`
	DomainSource  string        `mapstructure:"domain_source"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type MimirConfig struct {
	URL           string        `mapstructure:"url"`
	TenantHeader  string        `mapstructure:"tenant_header"`
	TenantID      string        `mapstructure:"tenant_id"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	AuthToken     string        `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// MonitorSeed describes a monitor loaded into the in-memory store when no
// database is configured.
type MonitorSeed struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Method   string `mapstructure:"method"`
	Keyword  string `mapstructure:"keyword"`
	Interval int    `mapstructure:"interval"`
}

const (
	DomainSourceRDAP  = "rdap"
	DomainSourceWhois = "whois"
)

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if token := os.Getenv("DINGTALK_ACCESS_TOKEN"); token != "" {
		cfg.Alert.AccessToken = token
	}
	if secret := os.Getenv("DINGTALK_SECRET"); secret != "" {
		cfg.Alert.Secret = secret
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.lease_ttl", "2m")
	v.SetDefault("scheduler.tick_interval", "1m")
	v.SetDefault("scheduler.check_timeout", "10s")
	v.SetDefault("scheduler.retry_threshold", 3)
	v.SetDefault("scheduler.info_cooldown", "24h")
	v.SetDefault("scheduler.info_timeout", "1m")
	v.SetDefault("alert.webhook_url", "https://oapi.dingtalk.com/robot/send")
	v.SetDefault("alert.timezone", "UTC")
	v.SetDefault("alert.timeout", "10s")
	v.SetDefault("lookup.ct_url", "https://crt.sh/")
	v.SetDefault("lookup.rdap_url", "https://rdap.org")
	v.SetDefault("lookup.domain_source", DomainSourceRDAP)
	v.SetDefault("lookup.timeout", "20s")
	v.SetDefault("lookup.rate_per_second", 1.0)
	v.SetDefault("lookup.burst", 3)
	v.SetDefault("mimir.tenant_header", "X-Scope-OrgID")
	v.SetDefault("mimir.tenant_id", "uptime-sentinel")
	v.SetDefault("mimir.batch_size", 1000)
	v.SetDefault("mimir.flush_interval", "10s")
	v.SetDefault("log.level", "info")
}

func (c *Config) Validate() error {
	switch {
	case c.Scheduler.TickInterval <= 0:
		return errors.New("scheduler.tick_interval must be positive")
	case c.Scheduler.CheckTimeout <= 0:
		return errors.New("scheduler.check_timeout must be positive")
	case c.Scheduler.RetryThreshold < 1:
		return errors.New("scheduler.retry_threshold must be at least 1")
	case c.Scheduler.InfoCooldown <= 0:
		return errors.New("scheduler.info_cooldown must be positive")
	case c.Alert.Timeout <= 0:
		return errors.New("alert.timeout must be positive")
	case c.Lookup.Timeout <= 0:
		return errors.New("lookup.timeout must be positive")
	}

	switch c.Lookup.DomainSource {
	case DomainSourceRDAP, DomainSourceWhois:
	default:
		return fmt.Errorf("lookup.domain_source: unknown source %q", c.Lookup.DomainSource)
	}

	if _, err := time.LoadLocation(c.Alert.Timezone); err != nil {
		return fmt.Errorf("alert.timezone: %w", err)
	}
	return nil
}
