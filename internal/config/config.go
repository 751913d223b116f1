package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Access    AccessConfig
	MinIO     MinIOConfig
	SMTP      SMTPConfig
	Checkout  CheckoutConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AllowInsecureToken accepts unsigned ID tokens; ignored in production.
	AllowInsecureToken bool
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// AccessConfig drives the guard policies and the entitlement cache.
type AccessConfig struct {
	AdminEmails    []string
	AdminRole      string
	OverrideUserID string
	FetchTimeout   time.Duration
	EntitlementTTL time.Duration
	ViewSessionTTL time.Duration
	LoginPath      string
	UpgradePath    string
	AdminHome      string
	UserHome       string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type CheckoutConfig struct {
	FunctionURL string
	APIKey      string
	SuccessURL  string
	CancelURL   string
}

// IsProduction reports whether the process runs in the production execution context.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Environment), "production")
}

// Issuer returns the Keycloak realm issuer URL, or "" when Keycloak is not configured.
func (c *Config) Issuer() string {
	if c.Keycloak.URL == "" {
		return ""
	}
	if c.Keycloak.Realm == "" {
		return c.Keycloak.URL
	}
	return strings.TrimRight(c.Keycloak.URL, "/") + "/realms/" + c.Keycloak.Realm
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "portal")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("ACCESS_ADMIN_ROLE", "admin")
	v.SetDefault("OVERRIDE_USER_ID", "override-user")
	v.SetDefault("ACCESS_FETCH_TIMEOUT", 3)
	v.SetDefault("ENTITLEMENT_CACHE_TTL", 300)
	v.SetDefault("VIEW_SESSION_TTL", 720)
	v.SetDefault("ACCESS_LOGIN_PATH", "/login")
	v.SetDefault("ACCESS_UPGRADE_PATH", "/pricing")
	v.SetDefault("ACCESS_ADMIN_HOME", "/admin")
	v.SetDefault("ACCESS_USER_HOME", "/dashboard")
	v.SetDefault("MINIO_BUCKET", "portal")
	v.SetDefault("SMTP_PORT", 587)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:                v.GetString("KEYCLOAK_URL"),
			Realm:              v.GetString("KEYCLOAK_REALM"),
			ClientID:           v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:       v.GetString("KEYCLOAK_CLIENT_SECRET"),
			RedirectURL:        v.GetString("KEYCLOAK_REDIRECT_URL"),
			AllowInsecureToken: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Access: AccessConfig{
			AdminEmails:    splitList(v.GetString("ACCESS_ADMIN_EMAILS")),
			AdminRole:      v.GetString("ACCESS_ADMIN_ROLE"),
			OverrideUserID: v.GetString("OVERRIDE_USER_ID"),
			FetchTimeout:   time.Duration(v.GetInt("ACCESS_FETCH_TIMEOUT")) * time.Second,
			EntitlementTTL: time.Duration(v.GetInt("ENTITLEMENT_CACHE_TTL")) * time.Second,
			ViewSessionTTL: time.Duration(v.GetInt("VIEW_SESSION_TTL")) * time.Minute,
			LoginPath:      v.GetString("ACCESS_LOGIN_PATH"),
			UpgradePath:    v.GetString("ACCESS_UPGRADE_PATH"),
			AdminHome:      v.GetString("ACCESS_ADMIN_HOME"),
			UserHome:       v.GetString("ACCESS_USER_HOME"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
			To:       v.GetString("CONTACT_INBOX"),
		},
		Checkout: CheckoutConfig{
			FunctionURL: v.GetString("CHECKOUT_FUNCTION_URL"),
			APIKey:      v.GetString("CHECKOUT_API_KEY"),
			SuccessURL:  v.GetString("CHECKOUT_SUCCESS_URL"),
			CancelURL:   v.GetString("CHECKOUT_CANCEL_URL"),
		},
	}

	if cfg.JWT.Secret == "" {
		if cfg.IsProduction() {
			return nil, errMissing("JWT_SECRET")
		}
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}
	if cfg.IsProduction() && cfg.Keycloak.AllowInsecureToken {
		logger.Warn("ALLOW_INSECURE_TOKEN ignored in production")
		cfg.Keycloak.AllowInsecureToken = false
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type missingError string

func (e missingError) Error() string { return "environment variable " + string(e) + " is required" }

func errMissing(key string) error { return missingError(key) }
