package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	RunMigrations     bool          `mapstructure:"RUN_MIGRATIONS"`
	SeedDemo          bool          `mapstructure:"SEED_DEMO"`
	AdminKey          string        `mapstructure:"ADMIN_KEY"`
	SignalsURL        string        `mapstructure:"SIGNALS_URL"`
	NATSURL           string        `mapstructure:"NATS_URL"`
	GeocoderURL       string        `mapstructure:"GEOCODER_URL"`
	GeocoderUserAgent string        `mapstructure:"GEOCODER_USER_AGENT"`
	CORSAllowed       string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogFile           string        `mapstructure:"LOG_FILE"`

	MinScore             float64       `mapstructure:"MIN_SCORE"`
	CriticalDelayMinutes int           `mapstructure:"CRITICAL_DELAY_MINUTES"`
	BetterAgentMargin    float64       `mapstructure:"BETTER_AGENT_MARGIN"`
	MonitorInterval      time.Duration `mapstructure:"MONITOR_INTERVAL"`
	MonitorConcurrency   int           `mapstructure:"MONITOR_CONCURRENCY"`
	IncidentCacheTTL     time.Duration `mapstructure:"INCIDENT_CACHE_TTL"`
}

var defaults = map[string]any{
	"ENV":                    "dev",
	"PORT":                   "8080",
	"DATABASE_URL":           "",
	"ADMIN_KEY":              "",
	"SIGNALS_URL":            "",
	"NATS_URL":               "",
	"LOG_FILE":               "",
	"RUN_MIGRATIONS":         true,
	"SEED_DEMO":              false,
	"REQUEST_TIMEOUT":        "30s",
	"LOG_LEVEL":              "info",
	"CORS_ALLOWED_ORIGINS":   "*",
	"GEOCODER_URL":           "https://nominatim.openstreetmap.org",
	"GEOCODER_USER_AGENT":    "pmr-assist-backend/1.0",
	"MIN_SCORE":              20.0,
	"CRITICAL_DELAY_MINUTES": 60,
	"BETTER_AGENT_MARGIN":    10.0,
	"MONITOR_INTERVAL":       "0s",
	"MONITOR_CONCURRENCY":    4,
	"INCIDENT_CACHE_TTL":     "30s",
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	return load(".env")
}

func load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}
