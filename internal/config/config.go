// Package config loads service settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Storage   Storage   `yaml:"storage"`
	Auth      Auth      `yaml:"auth"`
	CORS      CORS      `yaml:"cors"`
	Runner    Runner    `yaml:"runner"`
	Topics    Topics    `yaml:"topics"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
	Sync      Sync      `yaml:"sync"`
}

type Server struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

type Database struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" validate:"min=1"`
	// BindIdentity runs each request's queries in a transaction carrying
	// the caller's claims, for row-level security policies.
	BindIdentity bool `yaml:"bind_identity"`
	// Timeout bounds the store work of a single request.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type Storage struct {
	Backend    string `yaml:"backend" validate:"oneof=postgres sqlite memory"`
	SQLitePath string `yaml:"sqlite_path"`
}

// StaticUser is a fixed bearer token identity.
type StaticUser struct {
	UserID string `yaml:"user_id" validate:"required"`
	Email  string `yaml:"email"`
}

type Auth struct {
	URL           string                `yaml:"url" validate:"omitempty,url"`
	ServiceKey    string                `yaml:"service_key"`
	SharedSecret  string                `yaml:"shared_secret"`
	RequireSecret bool                  `yaml:"require_secret"`
	AllowedEmails []string              `yaml:"allowed_emails"`
	RedirectURL   string                `yaml:"redirect_url"`
	Tokens        map[string]StaticUser `yaml:"tokens" validate:"dive"`
}

type CORS struct {
	Origins []string `yaml:"origins"`
}

type Runner struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type Topics struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type Telemetry struct {
	Exporter    string `yaml:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type Sync struct {
	// Optimistic conditions head sync writes on the updatedAt read before
	// the write.
	Optimistic bool `yaml:"optimistic"`
	ChunkSize  int  `yaml:"chunk_size" validate:"min=1"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server:   Server{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Database: Database{MaxConns: 10, Timeout: 30 * time.Second},
		Storage:  Storage{Backend: BackendPostgres, SQLitePath: "data/taskvault.db"},
		Auth:     Auth{RequireSecret: true},
		CORS:     CORS{Origins: []string{"*"}},
		Runner:   Runner{URL: "https://hostpython.onrender.com/api/run-tests", Timeout: 45 * time.Second},
		Topics: Topics{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:   "gemini-2.5-flash",
			Timeout: 30 * time.Second,
		},
		Logging:   Logging{Level: "info", Format: "json"},
		Telemetry: Telemetry{Exporter: "none", Endpoint: "localhost:4317", ServiceName: "taskvault"},
		Sync:      Sync{Optimistic: true, ChunkSize: 200},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.SharedSecret == "" {
		cfg.Auth.SharedSecret = cfg.Auth.ServiceKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("DATABASE_URL", &c.Database.URL)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("SUPABASE_URL", &c.Auth.URL)
	str("SUPABASE_SERVICE_ROLE_KEY", &c.Auth.ServiceKey)
	str("BACKEND_SHARED_SECRET", &c.Auth.SharedSecret)
	str("SUPABASE_REDIRECT_URL", &c.Auth.RedirectURL)
	list("ALLOWED_EMAILS", &c.Auth.AllowedEmails)
	list("CORS_ORIGINS", &c.CORS.Origins)
	str("RUNNER_URL", &c.Runner.URL)
	str("API_KEY", &c.Topics.APIKey)
	str("TOPICS_BASE_URL", &c.Topics.BaseURL)
	str("TOPICS_MODEL", &c.Topics.Model)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	str("OTEL_TRACES_EXPORTER", &c.Telemetry.Exporter)

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("REQUIRE_BACKEND_SECRET"); ok {
		c.Auth.RequireSecret = strings.ToLower(strings.TrimSpace(v)) == "true"
	}
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if c.Storage.Backend == BackendPostgres && c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required for the postgres backend"))
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
	}
	if c.Auth.RequireSecret && c.Auth.SharedSecret == "" {
		errs = append(errs, errors.New("auth.shared_secret (or service_key) is required when require_secret is set"))
	}
	if c.Auth.URL == "" && len(c.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("auth.url or auth.tokens must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
