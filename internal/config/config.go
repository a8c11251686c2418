package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by llm.provider
const (
	ProviderChat   = "chat"
	ProviderVertex = "vertex"
)

// Backend names for sessions and credentials
const (
	SessionRedis  = "redis"
	SessionMemory = "memory"

	IdentityToolkit  = "identitytoolkit"
	IdentityPostgres = "postgres"
)

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	PublicURL    string        `yaml:"public_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SessionConfig controls the session cookie and its backing store
type SessionConfig struct {
	Backend    string        `yaml:"backend"`
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

// RedisConfig is used when the session backend is redis
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig points at the Postgres instance holding profiles and history
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// IdentityConfig selects the credential store
type IdentityConfig struct {
	Backend         string `yaml:"backend"`
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
	BaseURL         string `yaml:"base_url"`
}

// OAuthConfig holds the Google OAuth client used for Gmail delegation.
// ClientSecretsFile is a downloaded client credentials JSON and takes the
// place of ClientID and ClientSecret when set.
type OAuthConfig struct {
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	ClientSecretsFile string `yaml:"client_secrets_file"`
	RedirectURL       string `yaml:"redirect_url"`
}

// LLMConfig configures draft generation
type LLMConfig struct {
	Provider           string        `yaml:"provider"`
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	SystemPrompt       string        `yaml:"system_prompt"`
	PromptTemplatePath string        `yaml:"prompt_template_path"`
	ResumeBudget       int           `yaml:"resume_budget"`
	MinWords           int           `yaml:"min_words"`
	Timeout            time.Duration `yaml:"timeout"`
	Project            string        `yaml:"project"`
	Location           string        `yaml:"location"`
}

// MailConfig holds fixed properties of outgoing mail
type MailConfig struct {
	Subject string `yaml:"subject"`
}

// EventsConfig configures the AMQP publisher; an empty URL disables it
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// PolicyConfig holds application policy switches
type PolicyConfig struct {
	RequireLogin   bool    `yaml:"require_login"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Identity IdentityConfig `yaml:"identity"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	LLM      LLMConfig      `yaml:"llm"`
	Mail     MailConfig     `yaml:"mail"`
	Events   EventsConfig   `yaml:"events"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":5000",
			PublicURL:    "http://localhost:5000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Session: SessionConfig{
			Backend:    SessionRedis,
			CookieName: "outreach_session",
			TTL:        24 * time.Hour,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Identity: IdentityConfig{
			Backend: IdentityToolkit,
			BaseURL: "https://identitytoolkit.googleapis.com",
		},
		LLM: LLMConfig{
			Provider:     ProviderChat,
			BaseURL:      "https://api.groq.com/openai/v1",
			Model:        "llama3-8b-8192",
			SystemPrompt: "You are a career assistant helping users write professional emails.",
			ResumeBudget: 2000,
			Timeout:      60 * time.Second,
			Location:     "us-central1",
		},
		Mail: MailConfig{
			Subject: "Let's Connect!",
		},
		Events: EventsConfig{
			Exchange: "outreach",
		},
		Policy: PolicyConfig{
			RequireLogin:   true,
			RateLimitRPS:   1,
			RateLimitBurst: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (if any) and applies environment overrides
func Load(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	overrideFromEnv(cfg)
	return cfg, nil
}

// LoadFrom loads configuration from a specific path.
// A missing file yields the defaults. JSON files are accepted as YAML.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func overrideFromEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	setString(&cfg.Server.PublicURL, "PUBLIC_URL")

	setString(&cfg.Session.Secret, "SESSION_SECRET")
	setString(&cfg.Session.Backend, "SESSION_BACKEND")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}

	setString(&cfg.Database.URL, "DATABASE_URL")

	setString(&cfg.Identity.Backend, "IDENTITY_BACKEND")
	setString(&cfg.Identity.APIKey, "IDENTITY_API_KEY", "FIREBASE_API_KEY")
	setString(&cfg.Identity.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&cfg.Identity.ProjectID, "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")

	setString(&cfg.OAuth.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.OAuth.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.OAuth.ClientSecretsFile, "GOOGLE_CLIENT_SECRETS_FILE")
	setString(&cfg.OAuth.RedirectURL, "OAUTH_REDIRECT_URL")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY", "GROQ_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.Project, "GOOGLE_CLOUD_PROJECT")
	setString(&cfg.LLM.Location, "GOOGLE_CLOUD_LOCATION")

	setString(&cfg.Events.AMQPURL, "AMQP_URL")
	setString(&cfg.Log.Level, "LOG_LEVEL")
}

// RedirectURL returns the OAuth callback, derived from the public URL when unset
func (c *Config) RedirectURL() string {
	if c.OAuth.RedirectURL != "" {
		return c.OAuth.RedirectURL
	}
	return c.Server.PublicURL + "/authorize"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	switch c.Session.Backend {
	case SessionRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis session backend"))
		}
	case SessionMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}

	if c.OAuth.ClientSecretsFile != "" {
		if _, err := os.Stat(c.OAuth.ClientSecretsFile); err != nil {
			errs = append(errs, fmt.Errorf("oauth client secrets file not found: %w", err))
		}
	} else if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		errs = append(errs, errors.New("oauth.client_id and oauth.client_secret are required"))
	}

	switch c.LLM.Provider {
	case ProviderChat:
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key is required for the chat provider"))
		}
	case ProviderVertex:
		if c.LLM.Project == "" {
			errs = append(errs, errors.New("llm.project is required for the vertex provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.PromptTemplatePath != "" {
		if _, err := os.Stat(c.LLM.PromptTemplatePath); err != nil {
			errs = append(errs, fmt.Errorf("prompt template not found: %w", err))
		}
	}

	switch c.Identity.Backend {
	case IdentityToolkit:
		if c.Identity.APIKey == "" {
			errs = append(errs, errors.New("identity.api_key is required for the identitytoolkit backend"))
		}
		if c.Identity.CredentialsFile != "" {
			if _, err := os.Stat(c.Identity.CredentialsFile); err != nil {
				errs = append(errs, fmt.Errorf("service account credentials file not found: %w", err))
			}
		}
	case IdentityPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown identity backend %q", c.Identity.Backend))
	}

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	return errors.Join(errs...)
}
