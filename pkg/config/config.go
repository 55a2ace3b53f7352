package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Token store backends.
const (
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Calendar CalendarConfig
	YouTube  YouTubeConfig
	Sync     SyncConfig
	Google   GoogleConfig
	History  HistoryConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
}

// CalendarConfig identifies the source and ledger calendars and the note keywords.
type CalendarConfig struct {
	ClassroomCalendarID string   `validate:"required"`
	LedgerCalendarID    string   `validate:"required"`
	StreamingKeywords   []string `validate:"min=1"`
	PrivateKeywords     []string
}

// YouTubeConfig names the reusable ingest stream.
type YouTubeConfig struct {
	LiveStreamTitle string `validate:"required"`
}

// SyncConfig bounds the listing window and the serve-mode schedule.
type SyncConfig struct {
	PreviousDays  int `validate:"gte=0"`
	FutureDays    int `validate:"gte=1"`
	MaxResults    int `validate:"gte=1,lte=2500"`
	NextEventDays int `validate:"gte=1,ltefield=FutureDays"`
	Schedule      string
	MaxRetries    int `validate:"gte=0"`
	RetryDelay    time.Duration
}

// GoogleConfig locates OAuth client secrets and the persisted token.
type GoogleConfig struct {
	CredentialsFile string `validate:"required"`
	TokenFile       string
	TokenStore      string `validate:"oneof=file redis"`
	TokenCacheKey   string
}

// HistoryConfig toggles the Postgres run history.
type HistoryConfig struct {
	Enabled bool
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env and the environment into a Config without validating it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	streaming, err := parseKeywords(v.GetString("STREAMING_KEYWORDS"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "invalid STREAMING_KEYWORDS")
	}
	private, err := parseKeywords(v.GetString("PRIVATE_KEYWORDS"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "invalid PRIVATE_KEYWORDS")
	}
	cfg.Calendar = CalendarConfig{
		ClassroomCalendarID: v.GetString("CLASSROOM_CALENDAR_ID"),
		LedgerCalendarID:    v.GetString("CALENDAR2YOUTUBE_CALENDAR_ID"),
		StreamingKeywords:   streaming,
		PrivateKeywords:     private,
	}

	cfg.YouTube = YouTubeConfig{LiveStreamTitle: v.GetString("LIVE_STREAM_TITLE")}

	cfg.Sync = SyncConfig{
		PreviousDays:  v.GetInt("SYNC_PREVIOUS_DAYS"),
		FutureDays:    v.GetInt("SYNC_FUTURE_DAYS"),
		MaxResults:    v.GetInt("SYNC_MAX_RESULTS"),
		NextEventDays: v.GetInt("NEXT_EVENT_DAYS"),
		Schedule:      v.GetString("SYNC_SCHEDULE"),
		MaxRetries:    v.GetInt("SYNC_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("SYNC_RETRY_DELAY"), 30*time.Second),
	}

	cfg.Google = GoogleConfig{
		CredentialsFile: v.GetString("GOOGLE_CREDENTIALS_FILE"),
		TokenFile:       v.GetString("GOOGLE_TOKEN_FILE"),
		TokenStore:      strings.ToLower(v.GetString("TOKEN_STORE")),
		TokenCacheKey:   v.GetString("TOKEN_CACHE_KEY"),
	}

	cfg.History = HistoryConfig{Enabled: v.GetBool("ENABLE_HISTORY")}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

// Validate checks the settings a sync run cannot start without. Failures carry
// the CONFIGURATION_ERROR code.
func (c *Config) Validate() error {
	validate := validator.New()
	var failures []string
	for _, section := range []interface{}{c.Calendar, c.YouTube, c.Sync, c.Google} {
		if err := validate.Struct(section); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					failures = append(failures, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
				}
				continue
			}
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return appErrors.Wrap(errors.New(strings.Join(failures, "; ")), appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "invalid configuration")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("CLASSROOM_CALENDAR_ID", "")
	v.SetDefault("CALENDAR2YOUTUBE_CALENDAR_ID", "")
	v.SetDefault("LIVE_STREAM_TITLE", "")
	v.SetDefault("STREAMING_KEYWORDS", `["[streaming]"]`)
	v.SetDefault("PRIVATE_KEYWORDS", `["[private]"]`)

	v.SetDefault("SYNC_PREVIOUS_DAYS", 0)
	v.SetDefault("SYNC_FUTURE_DAYS", 30)
	v.SetDefault("SYNC_MAX_RESULTS", 100)
	v.SetDefault("NEXT_EVENT_DAYS", 7)
	v.SetDefault("SYNC_SCHEDULE", "*/15 * * * *")
	v.SetDefault("SYNC_MAX_RETRIES", 2)
	v.SetDefault("SYNC_RETRY_DELAY", "30s")

	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("GOOGLE_TOKEN_FILE", "token.json")
	v.SetDefault("TOKEN_STORE", TokenStoreFile)
	v.SetDefault("TOKEN_CACHE_KEY", "calendar2youtube:oauth-token")

	v.SetDefault("ENABLE_HISTORY", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "calendar2youtube")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "calendar2youtube")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// parseKeywords accepts either a JSON array or a comma separated list. A value
// starting with [ is read as JSON first, so [] yields an empty set; bare
// bracketed keywords such as [streaming] fall back to the comma list.
func parseKeywords(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "[") {
		return splitAndTrim(raw), nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		if looksLikeJSONList(raw) {
			return nil, fmt.Errorf("parse keyword list: %w", err)
		}
		return splitAndTrim(raw), nil
	}
	return trimAll(list), nil
}

// looksLikeJSONList reports whether raw opens with [ followed by a quote,
// ignoring whitespace.
func looksLikeJSONList(raw string) bool {
	rest := strings.TrimSpace(strings.TrimPrefix(raw, "["))
	return strings.HasPrefix(rest, `"`)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	return trimAll(strings.Split(raw, ","))
}

func trimAll(parts []string) []string {
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
