package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"herhealth/logging"
	"herhealth/ml"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       logging.Config  `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Models    ModelsConfig    `yaml:"models"`
	Messaging MessagingConfig `yaml:"messaging"`
	LLM       LLMConfig       `yaml:"llm"`
	Weather   WeatherConfig   `yaml:"weather"`
	Geo       GeoConfig       `yaml:"geo"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
}

// RateLimit applies to the routes that call paid or slow upstreams.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ModelsConfig struct {
	// FailFast stops the process when a classifier cannot be trained.
	FailFast bool        `yaml:"fail_fast"`
	Workers  int         `yaml:"workers"`
	Risk     RiskConfig  `yaml:"risk"`
	Fetal    FetalConfig `yaml:"fetal"`
}

type RiskConfig struct {
	Dataset   string       `yaml:"dataset"`
	Seed      int64        `yaml:"seed"`
	TestRatio float64      `yaml:"test_ratio"`
	Folds     int          `yaml:"folds"`
	Grid      ml.ParamGrid `yaml:"grid"`
}

type FetalConfig struct {
	Dataset     string  `yaml:"dataset"`
	Seed        int64   `yaml:"seed"`
	TestRatio   float64 `yaml:"test_ratio"`
	NEstimators int     `yaml:"n_estimators"`
}

type MessagingConfig struct {
	AccountSID      string        `yaml:"account_sid"`
	AuthToken       string        `yaml:"auth_token"`
	FromNumber      string        `yaml:"from_number"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

type LLMConfig struct {
	Host         string        `yaml:"host"`
	Model        string        `yaml:"model"`
	PromptPrefix string        `yaml:"prompt_prefix"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	RetryWait    time.Duration `yaml:"retry_wait"`
}

type WeatherConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type GeoConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   200 * time.Second,
			RequestTimeout: 190 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
			RateLimit:      RateLimit{PerSecond: 2, Burst: 5},
		},
		Log:      logging.Config{Level: "info"},
		Database: DatabaseConfig{Path: "herhealth.db"},
		Models: ModelsConfig{
			FailFast: true,
			Risk: RiskConfig{
				Dataset:   "data/maternal_health_risk.csv",
				Seed:      42,
				TestRatio: 0.2,
				Folds:     5,
				Grid:      ml.DefaultParamGrid(),
			},
			Fetal: FetalConfig{
				Dataset:     "data/fetal_health.csv",
				Seed:        42,
				TestRatio:   0.2,
				NEstimators: 100,
			},
		},
		Messaging: MessagingConfig{
			DeliveryTimeout: 5 * time.Second,
			PollInterval:    time.Second,
		},
		LLM: LLMConfig{
			Host:         "http://localhost:11434",
			Model:        "mistral",
			PromptPrefix: "As a maternal health assistant named Janani, please answer: ",
			Timeout:      60 * time.Second,
			RetryMax:     2,
			RetryWait:    2 * time.Second,
		},
		Weather: WeatherConfig{
			BaseURL:   "https://api.openweathermap.org",
			Timeout:   10 * time.Second,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Geo: GeoConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "herhealth_app",
			Timeout:   10 * time.Second,
			CacheSize: 256,
			CacheTTL:  24 * time.Hour,
		},
	}
}

// Load reads path over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "load %s", path)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("TWILIO_ACCOUNT_SID", &c.Messaging.AccountSID)
	setString("TWILIO_AUTH_TOKEN", &c.Messaging.AuthToken)
	setString("TWILIO_PHONE_NUMBER", &c.Messaging.FromNumber)
	setString("OPENWEATHER_API_KEY", &c.Weather.APIKey)
	setString("OLLAMA_HOST", &c.LLM.Host)
	setString("OLLAMA_MODEL", &c.LLM.Model)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("DATABASE_PATH", &c.Database.Path)
	setString("RISK_DATASET", &c.Models.Risk.Dataset)
	setString("FETAL_DATASET", &c.Models.Fetal.Dataset)

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", c.Server.Port)
	}
	if c.Models.Risk.Dataset == "" || c.Models.Fetal.Dataset == "" {
		return errors.New("models.risk.dataset and models.fetal.dataset are required")
	}
	if c.Models.Risk.Folds != 0 && c.Models.Risk.Folds < 2 {
		return errors.Newf("models.risk.folds must be at least 2, got %d", c.Models.Risk.Folds)
	}
	if c.Messaging.PollInterval <= 0 || c.Messaging.DeliveryTimeout <= 0 {
		return errors.New("messaging.poll_interval and messaging.delivery_timeout must be positive")
	}
	return nil
}

// MessagingEnabled reports whether real SMS can be sent.
func (c *Config) MessagingEnabled() bool {
	m := c.Messaging
	return m.AccountSID != "" && m.AuthToken != "" && m.FromNumber != ""
}
