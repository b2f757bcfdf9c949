package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"parkfee-bot/internal/domain"
)

const configPathEnv = "CONFIG_FILE"

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Config is the static configuration of the bot. It is read once at start-up.
type Config struct {
	StartKeywords []string              `yaml:"start_keywords"`
	Vehicles      map[string]string     `yaml:"vehicles"`
	Cities        []domain.CityEndpoint `yaml:"cities"`
	DefaultCities []string              `yaml:"default_cities"`
	QueryTimeout  time.Duration         `yaml:"query_timeout"`
	MaxItems      int                   `yaml:"max_items"`
	Session       SessionConfig         `yaml:"session"`
	ParamPrefix   string                `yaml:"param_prefix"`
	HTTPPort      int                   `yaml:"http_port"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	Table         string        `yaml:"table"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise. It has no cities.
func Default() Config {
	return Config{
		StartKeywords: []string{"查費", "check"},
		Vehicles: map[string]string{
			domain.VehicleCar.Code():        "汽車",
			domain.VehicleMotorcycle.Code(): "機車",
		},
		QueryTimeout: 2 * time.Second,
		MaxItems:     100,
		Session: SessionConfig{
			Backend: BackendMemory,
			TTL:     10 * time.Minute,
		},
		HTTPPort: 8080,
	}
}

// Load reads defaults, then the YAML file named by CONFIG_FILE (optional),
// then environment overrides, and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("START_KEYWORDS"); ok {
		cfg.StartKeywords = splitList(v)
	}
	if v, ok := lookup("DEFAULT_CITIES"); ok {
		cfg.DefaultCities = splitList(v)
	}
	if v, ok := lookup("PARAM_PREFIX"); ok {
		cfg.ParamPrefix = strings.TrimSpace(v)
	}
	if v, ok := lookup("SESSION_BACKEND"); ok {
		cfg.Session.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("SESSION_TABLE"); ok {
		cfg.Session.Table = strings.TrimSpace(v)
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.Session.RedisAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Session.RedisPassword = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"QUERY_TIMEOUT", &cfg.QueryTimeout},
		{"SESSION_TTL", &cfg.Session.TTL},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_ITEMS", &cfg.MaxItems},
		{"HTTP_PORT", &cfg.HTTPPort},
	}
	for _, n := range ints {
		v, ok := lookup(n.key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", n.key, err)
		}
		*n.dst = parsed
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that cannot be fixed by a default.
func (c Config) Validate() error {
	var errs []error
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query_timeout must be positive"))
	}
	if c.MaxItems <= 0 {
		errs = append(errs, errors.New("max_items must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port %d out of range", c.HTTPPort))
	}
	for code := range c.Vehicles {
		if _, ok := domain.ParseVehicleCode(code); !ok {
			errs = append(errs, fmt.Errorf("unknown vehicle code %q", code))
		}
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if c.Session.Table == "" {
			errs = append(errs, errors.New("session.table is required for the dynamodb backend"))
		}
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// VehicleLabels returns the configured labels keyed by vehicle type.
func (c Config) VehicleLabels() map[domain.VehicleType]string {
	out := make(map[domain.VehicleType]string, len(c.Vehicles))
	for code, label := range c.Vehicles {
		if v, ok := domain.ParseVehicleCode(code); ok {
			out[v] = label
		}
	}
	return out
}
