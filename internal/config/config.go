// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type MatrixConfig struct {
	Homeserver    string `yaml:"homeserver"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	DefaultRoom   string `yaml:"default_room"`
	CommandPrefix string `yaml:"command_prefix"`
	AutoJoin      bool   `yaml:"auto_join"`
	AckWorkers    int    `yaml:"ack_workers"` // acknowledgement senders
}

type DeliveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type HistoryConfig struct {
	Size int `yaml:"size"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type APIConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Delivery DeliveryConfig `yaml:"delivery"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultConfigPath is the YAML file read when no -config flag is given.
// Unlike an explicit path, it is allowed to be missing.
const DefaultConfigPath = "config.yaml"

// LoadConfig reads the optional YAML file at path, then the .env file, then
// lets environment variables override everything.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5001},
		Matrix: MatrixConfig{CommandPrefix: "!", AutoJoin: true},
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// .env is optional, real environment variables win over it.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = cfg.Server.Debug
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Matrix.CommandPrefix == "" {
		cfg.Matrix.CommandPrefix = "!"
	}
	if cfg.Matrix.AckWorkers <= 0 {
		cfg.Matrix.AckWorkers = 2
	}
	if cfg.Delivery.Timeout <= 0 {
		cfg.Delivery.Timeout = 10 * time.Second
	}
	if cfg.History.Size <= 0 {
		cfg.History.Size = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Debug {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "zabbix_bot"
	}
	if cfg.API.TokenTTL <= 0 {
		cfg.API.TokenTTL = 365 * 24 * time.Hour
	}
	cfg.Matrix.Homeserver = strings.TrimRight(cfg.Matrix.Homeserver, "/")
}

// Validate checks the settings the bridge cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Matrix.Homeserver == "" {
		missing = append(missing, "MATRIX_HOMESERVER")
	}
	if c.Matrix.User == "" {
		missing = append(missing, "MATRIX_USER")
	}
	if c.Matrix.Password == "" {
		missing = append(missing, "MATRIX_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Addr is the listen address of the webhook server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HOST", &cfg.Server.Host)
	str("MATRIX_HOMESERVER", &cfg.Matrix.Homeserver)
	str("MATRIX_USER", &cfg.Matrix.User)
	str("MATRIX_ROOM_ID", &cfg.Matrix.DefaultRoom)
	str("COMMAND_PREFIX", &cfg.Matrix.CommandPrefix)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("API_JWT_SECRET", &cfg.API.JWTSecret)
	// passwords may legitimately carry surrounding spaces
	if v, ok := os.LookupEnv("MATRIX_PASSWORD"); ok {
		cfg.Matrix.Password = v
	}

	var err error
	if cfg.Server.Port, err = envInt("PORT", cfg.Server.Port); err != nil {
		return err
	}
	if cfg.History.Size, err = envInt("HISTORY_SIZE", cfg.History.Size); err != nil {
		return err
	}
	if cfg.Redis.DB, err = envInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Matrix.AckWorkers, err = envInt("ACK_WORKERS", cfg.Matrix.AckWorkers); err != nil {
		return err
	}
	cfg.Server.Debug = envBool("DEBUG", cfg.Server.Debug)
	cfg.Matrix.AutoJoin = envBool("MATRIX_AUTO_JOIN", cfg.Matrix.AutoJoin)
	if v, ok := os.LookupEnv("DELIVERY_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("DELIVERY_TIMEOUT: %w", err)
		}
		cfg.Delivery.Timeout = d
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// envBool only treats "true" (any case) as true.
func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// parseTimeout accepts Go durations ("10s") and bare seconds ("10").
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
