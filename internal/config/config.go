package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wagerdash/connect-service/internal/domain/connect"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret string
	SessionIssuer string

	// Dashboard locations the OAuth flows redirect back to.
	LoginURL       string
	SettingsURL    string
	ConnectionsURL string

	StateTTL        time.Duration
	RefreshSkew     time.Duration
	ProviderTimeout time.Duration

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	Providers map[string]connect.Provider
}

// Provider returns the configuration for a provider name, if enabled.
func (c Config) Provider(name string) (connect.Provider, bool) {
	p, ok := c.Providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(sessionSecret) < 32 {
		return Config{}, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "wagerdash-connect"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		SessionSecret:        sessionSecret,
		SessionIssuer:        getEnv("SESSION_ISSUER", "wagerdash"),
		LoginURL:             getEnv("LOGIN_URL", "/login"),
		SettingsURL:          getEnv("SETTINGS_URL", "/dashboard/settings"),
		ConnectionsURL:       getEnv("CONNECTIONS_URL", "/dashboard/connections"),
		StateTTL:             getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		RefreshSkew:          getDuration("TOKEN_REFRESH_SKEW", 30*time.Second),
		ProviderTimeout:      getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
		Providers:            loadProviders(),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.Providers) == 0 {
		return Config{}, fmt.Errorf("no OAuth provider configured; set KICK_CLIENT_ID at minimum")
	}

	return cfg, nil
}

// providerDefaults carries the known endpoints per provider. Everything is
// overridable through <PROVIDER>_* env vars.
var providerDefaults = map[string]connect.Provider{
	"kick": {
		Name:        "kick",
		DisplayName: "Kick",
		AuthURL:     "https://id.kick.com/oauth/authorize",
		TokenURL:    "https://id.kick.com/oauth/token",
		RevokeURL:   "https://id.kick.com/oauth/revoke",
		ProfileURL:  "https://api.kick.com/public/v1/users",
		Scopes:      []string{"user:read", "channel:read"},
	},
	"roobet": {
		Name:        "roobet",
		DisplayName: "Roobet",
		Scopes:      []string{"profile"},
	},
	"shuffle": {
		Name:        "shuffle",
		DisplayName: "Shuffle",
		Scopes:      []string{"profile"},
	},
}

func loadProviders() map[string]connect.Provider {
	providers := make(map[string]connect.Provider)
	for name, def := range providerDefaults {
		prefix := strings.ToUpper(name) + "_"
		clientID := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
		if clientID == "" {
			continue
		}
		p := def
		p.ClientID = clientID
		p.ClientSecret = os.Getenv(prefix + "CLIENT_SECRET")
		p.AuthURL = getEnv(prefix+"AUTH_URL", def.AuthURL)
		p.TokenURL = getEnv(prefix+"TOKEN_URL", def.TokenURL)
		p.RevokeURL = getEnv(prefix+"REVOKE_URL", def.RevokeURL)
		p.ProfileURL = getEnv(prefix+"PROFILE_URL", def.ProfileURL)
		p.RedirectURI = os.Getenv(prefix + "REDIRECT_URI")
		p.Scopes = getList(prefix+"SCOPES", def.Scopes)
		providers[name] = p
	}
	return providers
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
