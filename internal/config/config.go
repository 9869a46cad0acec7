package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/studymate/studymate-backend/internal/llm"
)

type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Auth     AuthConfig     `json:"auth" mapstructure:"auth"`
	Groq     ProviderConfig `json:"groq" mapstructure:"groq"`
	Gemini   ProviderConfig `json:"gemini" mapstructure:"gemini"`
	Router   RouterSettings `json:"router" mapstructure:"router"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host        string   `json:"host" mapstructure:"host"`
	Port        int      `json:"port" mapstructure:"port"`
	CORSOrigins []string `json:"cors_origins" mapstructure:"cors_origins"`
	// RequestsPerMinute caps chat requests per user or IP
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
}

type DatabaseConfig struct {
	// URL takes precedence over the individual fields when set
	URL      string `json:"url" mapstructure:"url"`
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`
	Audience  string `json:"audience" mapstructure:"audience"`
}

type ProviderConfig struct {
	BaseURL      string `json:"base_url,omitempty" mapstructure:"base_url"`
	APIKey       string `json:"api_key,omitempty" mapstructure:"api_key"`
	DefaultModel string `json:"default_model" mapstructure:"default_model"`
	VisionModel  string `json:"vision_model,omitempty" mapstructure:"vision_model"`
}

type RouterSettings struct {
	// EndpointBaseURL is where the router reaches the completion proxy.
	// Empty means this server's own address.
	EndpointBaseURL string   `json:"endpoint_base_url" mapstructure:"endpoint_base_url"`
	ProxyKey        string   `json:"proxy_key,omitempty" mapstructure:"proxy_key"`
	FallbackModels  []string `json:"fallback_models" mapstructure:"fallback_models"`
	Budget          bool     `json:"budget" mapstructure:"budget"`
}

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".studymate"))
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	loadEnvOverrides(cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("groq.default_model", d.Groq.DefaultModel)
	v.SetDefault("gemini.default_model", d.Gemini.DefaultModel)
	v.SetDefault("gemini.vision_model", d.Gemini.VisionModel)
	v.SetDefault("router.fallback_models", d.Router.FallbackModels)
	v.SetDefault("router.budget", d.Router.Budget)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3001,
			CORSOrigins:       []string{"http://localhost:5173", "http://localhost:3000"},
			RequestsPerMinute: 30,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "studymate",
			Database: "studymate",
			SSLMode:  "disable",
		},
		Auth: AuthConfig{
			Audience: "authenticated",
		},
		Groq: ProviderConfig{
			DefaultModel: "llama-3.1-8b-instant",
		},
		Gemini: ProviderConfig{
			DefaultModel: "gemini-2.0-flash-lite",
			VisionModel:  "gemini-2.0-flash-lite",
		},
		Router: RouterSettings{
			FallbackModels: append([]string(nil), llm.DefaultFallbackModels...),
			Budget:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func loadEnvOverrides(cfg *Config) {
	if port := firstEnv("STUDYMATE_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("STUDYMATE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if origins := os.Getenv("STUDYMATE_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	if key := firstEnv("GROQ_API_KEY", "VITE_GROQ_API_KEY"); key != "" {
		cfg.Groq.APIKey = key
	}
	if key := firstEnv("GEMINI_API_KEY", "VITE_GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if base := os.Getenv("STUDYMATE_ENDPOINT_BASE_URL"); base != "" {
		cfg.Router.EndpointBaseURL = base
	}
	if key := os.Getenv("STUDYMATE_PROXY_KEY"); key != "" {
		cfg.Router.ProxyKey = key
	}
	if secret := os.Getenv("SUPABASE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if level := os.Getenv("STUDYMATE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	// Database overrides
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}
}

// DatabaseEnabled reports whether a database was configured explicitly
func (c *Config) DatabaseEnabled() bool {
	return c.Database.URL != "" || c.Database.Password != ""
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// MigrationURL returns the connection string in URL form, as migrate needs it
func (d DatabaseConfig) MigrationURL() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RouterConfig builds the explicit llm.Config. When no endpoint is set the
// router talks to this server's own completion proxy on loopback.
func (c *Config) RouterConfig() llm.Config {
	endpoint := c.Router.EndpointBaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
	}

	return llm.Config{
		PrimaryAPIKey:    c.Router.ProxyKey,
		SecondaryAPIKey:  c.Gemini.APIKey,
		EndpointBaseURL:  endpoint,
		DefaultModel:     c.Groq.DefaultModel,
		FallbackModels:   c.Router.FallbackModels,
		SecondaryBaseURL: c.Gemini.BaseURL,
		SecondaryModel:   c.Gemini.DefaultModel,
		VisionModel:      c.Gemini.VisionModel,
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
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
