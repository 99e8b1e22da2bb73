package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Portal struct {
		BaseURL                string `yaml:"base_url"`
		Username               string `yaml:"username"`
		Password               string `yaml:"password"`
		MaxAppointments        int    `yaml:"max_appointments"`
		LoginRetries           int    `yaml:"login_retries"`
		LoginRetryDelaySeconds int    `yaml:"login_retry_delay_seconds"`
		SessionTTLMinutes      int    `yaml:"session_ttl_minutes"`
	} `yaml:"portal"`

	Google struct {
		ClientID          string  `yaml:"client_id"`
		ClientSecret      string  `yaml:"client_secret"`
		RefreshToken      string  `yaml:"refresh_token"`
		CalendarID        string  `yaml:"calendar_id"`
		TimeZone          string  `yaml:"time_zone"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"google"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`

		Backup struct {
			Enabled       bool   `yaml:"enabled"`
			Path          string `yaml:"path"`
			IntervalHours int    `yaml:"interval_hours"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`
	} `yaml:"journal"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Sync struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"sync"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = "https://login.synchron.de"
	}
	if cfg.Portal.MaxAppointments == 0 {
		cfg.Portal.MaxAppointments = 5
	}
	if cfg.Google.TimeZone == "" {
		cfg.Google.TimeZone = "Europe/Berlin"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "data/synchronsync.db"
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "*/30 * * * *"
	}

	if cfg.Portal.Username == "" || cfg.Portal.Password == "" {
		return nil, fmt.Errorf("portal.username and portal.password are required")
	}

	return &cfg, nil
}

func (c *Config) LoginRetryDelay() time.Duration {
	if c.Portal.LoginRetryDelaySeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Portal.LoginRetryDelaySeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Portal.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Portal.SessionTTLMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Journal.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Journal.Backup.IntervalHours) * time.Hour
}
