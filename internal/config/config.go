package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minSecretLength = 32

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Vector    VectorConfig
	AI        AIConfig
	Cloud     CloudConfig
	Security  SecurityConfig
	Upload    UploadConfig
	Log       LogConfig
	Cache     CacheConfig
	External  ExternalConfig
	Websocket WebsocketConfig
	Backup    BackupConfig
}

type ServerConfig struct {
	Env           string
	Port          string
	APIVersion    string
	BodyLimit     int
	ShutdownGrace time.Duration
}

type DBConfig struct {
	URL      string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
}

type AuthConfig struct {
	JWTSecret          string
	JWTExpiresIn       time.Duration
	RefreshSecret      string
	RefreshExpiresIn   time.Duration
	BcryptCost         int
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

type VectorConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type AIConfig struct {
	APIKey string
	Model  string
}

type CloudConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsPath string
	Region          string
}

type SecurityConfig struct {
	CORSOrigins     []string
	RateLimitWindow time.Duration
	RateLimitMax    int
}

type UploadConfig struct {
	MaxFileSize  int64
	Dir          string
	AllowedTypes []string
}

type LogConfig struct {
	Level          string
	RequestLogging bool
}

type CacheConfig struct {
	TTL        time.Duration
	APITimeout time.Duration
}

type ExternalConfig struct {
	WeatherAPIKey string
	WeatherAPIURL string
	MapsAPIKey    string
	RoutingAPIKey string
	RoutingAPIURL string
}

type WebsocketConfig struct {
	Enabled bool
	Origin  string
}

type BackupConfig struct {
	Enabled       bool
	Schedule      string
	RetentionDays int
}

// IsDevelopment reports whether detailed error output is allowed.
func (c Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// APIPrefix is the versioned mount point for every REST route.
func (c Config) APIPrefix() string {
	return "/api/" + c.Server.APIVersion
}

var defaults = map[string]any{
	"NODE_ENV":                "development",
	"PORT":                    "5000",
	"API_VERSION":             "v1",
	"BODY_LIMIT":              10 * 1024 * 1024,
	"SHUTDOWN_GRACE":          "10s",
	"DB_NAME":                 "wildguide",
	"DB_MAX_CONNS":            10,
	"JWT_EXPIRES_IN":          "24h",
	"JWT_REFRESH_EXPIRES_IN":  "7d",
	"BCRYPT_COST":             12,
	"QDRANT_COLLECTION_NAME":  "hiking_embeddings",
	"OPENAI_MODEL":            "gpt-4",
	"GOOGLE_CLOUD_REGION":     "us-central1",
	"CORS_ORIGIN":             "http://localhost:3000",
	"RATE_LIMIT_WINDOW_MS":    900000,
	"RATE_LIMIT_MAX_REQUESTS": 100,
	"MAX_FILE_SIZE":           10485760,
	"UPLOAD_DIR":              "./uploads",
	"ALLOWED_FILE_TYPES":      "image/jpeg,image/png,image/webp,application/pdf",
	"LOG_LEVEL":               "info",
	"ENABLE_REQUEST_LOGGING":  true,
	"CACHE_TTL":               3600,
	"API_TIMEOUT":             30000,
	"WEATHER_API_URL":         "https://api.openweathermap.org/data/2.5",
	"OPENROUTESERVICE_URL":    "https://api.openrouteservice.org",
	"WEBSOCKET_ENABLED":       true,
	"WEBSOCKET_CORS_ORIGIN":   "http://localhost:3000",
	"BACKUP_ENABLED":          false,
	"BACKUP_SCHEDULE":         "0 2 * * *",
	"BACKUP_RETENTION_DAYS":   30,
}

var optional = []string{
	"APP_ENV", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "JWT_SECRET", "JWT_REFRESH_SECRET",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_CALLBACK_URL",
	"QDRANT_URL", "QDRANT_API_KEY", "OPENAI_API_KEY",
	"GOOGLE_CLOUD_PROJECT_ID", "GOOGLE_CLOUD_STORAGE_BUCKET", "GOOGLE_CLOUD_CREDENTIALS_PATH",
	"WEATHER_API_KEY", "MAPS_API_KEY", "OPENROUTESERVICE_API_KEY",
}

// dotenvFiles is a seam for tests; missing files are ignored.
var dotenvFiles = []string{".env"}

// Load reads the process environment (and an optional .env file) into a
// Config and validates it.
func Load() (Config, error) {
	_ = godotenv.Load(dotenvFiles...)

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optional {
		_ = v.BindEnv(key)
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	millis := func(key string) time.Duration {
		return time.Duration(v.GetInt64(key)) * time.Millisecond
	}

	env := v.GetString("APP_ENV")
	if env == "" {
		env = v.GetString("NODE_ENV")
	}

	cfg := Config{
		Server: ServerConfig{
			Env:           env,
			Port:          v.GetString("PORT"),
			APIVersion:    v.GetString("API_VERSION"),
			BodyLimit:     v.GetInt("BODY_LIMIT"),
			ShutdownGrace: duration("SHUTDOWN_GRACE"),
		},
		DB: DBConfig{
			URL:      v.GetString("DATABASE_URL"),
			Name:     v.GetString("DB_NAME"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Auth: AuthConfig{
			JWTSecret:          v.GetString("JWT_SECRET"),
			JWTExpiresIn:       duration("JWT_EXPIRES_IN"),
			RefreshSecret:      v.GetString("JWT_REFRESH_SECRET"),
			RefreshExpiresIn:   duration("JWT_REFRESH_EXPIRES_IN"),
			BcryptCost:         v.GetInt("BCRYPT_COST"),
			GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			GoogleCallbackURL:  v.GetString("GOOGLE_CALLBACK_URL"),
		},
		Vector: VectorConfig{
			URL:        v.GetString("QDRANT_URL"),
			APIKey:     v.GetString("QDRANT_API_KEY"),
			Collection: v.GetString("QDRANT_COLLECTION_NAME"),
		},
		AI: AIConfig{
			APIKey: v.GetString("OPENAI_API_KEY"),
			Model:  v.GetString("OPENAI_MODEL"),
		},
		Cloud: CloudConfig{
			ProjectID:       v.GetString("GOOGLE_CLOUD_PROJECT_ID"),
			Bucket:          v.GetString("GOOGLE_CLOUD_STORAGE_BUCKET"),
			CredentialsPath: v.GetString("GOOGLE_CLOUD_CREDENTIALS_PATH"),
			Region:          v.GetString("GOOGLE_CLOUD_REGION"),
		},
		Security: SecurityConfig{
			CORSOrigins:     splitList(v.GetString("CORS_ORIGIN")),
			RateLimitWindow: millis("RATE_LIMIT_WINDOW_MS"),
			RateLimitMax:    v.GetInt("RATE_LIMIT_MAX_REQUESTS"),
		},
		Upload: UploadConfig{
			MaxFileSize:  v.GetInt64("MAX_FILE_SIZE"),
			Dir:          v.GetString("UPLOAD_DIR"),
			AllowedTypes: splitList(v.GetString("ALLOWED_FILE_TYPES")),
		},
		Log: LogConfig{
			Level:          v.GetString("LOG_LEVEL"),
			RequestLogging: v.GetBool("ENABLE_REQUEST_LOGGING"),
		},
		Cache: CacheConfig{
			TTL:        time.Duration(v.GetInt64("CACHE_TTL")) * time.Second,
			APITimeout: millis("API_TIMEOUT"),
		},
		External: ExternalConfig{
			WeatherAPIKey: v.GetString("WEATHER_API_KEY"),
			WeatherAPIURL: v.GetString("WEATHER_API_URL"),
			MapsAPIKey:    v.GetString("MAPS_API_KEY"),
			RoutingAPIKey: v.GetString("OPENROUTESERVICE_API_KEY"),
			RoutingAPIURL: v.GetString("OPENROUTESERVICE_URL"),
		},
		Websocket: WebsocketConfig{
			Enabled: v.GetBool("WEBSOCKET_ENABLED"),
			Origin:  v.GetString("WEBSOCKET_CORS_ORIGIN"),
		},
		Backup: BackupConfig{
			Enabled:       v.GetBool("BACKUP_ENABLED"),
			Schedule:      v.GetString("BACKUP_SCHEDULE"),
			RetentionDays: v.GetInt("BACKUP_RETENTION_DAYS"),
		},
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.DB.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Auth.RefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters long", minSecretLength))
	}
	if c.Auth.RefreshSecret != "" && len(c.Auth.RefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters long", minSecretLength))
	}
	return errors.Join(errs...)
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
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
