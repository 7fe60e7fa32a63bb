package config

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	MinIO     MinIOConfig
	Search    SearchConfig
	Editor    EditorConfig
	RateLimit RateLimitConfig
	// TaxonomyFile overrides the embedded equipment/operations catalogue.
	TaxonomyFile string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

type StorageConfig struct {
	Backend   string
	Dir       string
	KeyPrefix string
	Watch     bool
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	URL   string
	Table string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type SearchConfig struct {
	MeiliURL string
	MeiliKey string
	Index    string
}

// EditorConfig carries the timing knobs of the editing core.
type EditorConfig struct {
	ChangeDebounce   time.Duration
	FocusWindow      time.Duration
	FocusPoll        time.Duration
	AutosaveInterval time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and an optional .env file.
// Every setting has a default; with an empty environment the service runs on the
// in-memory store.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5010")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("STORAGE_DIR", "./data")
	v.SetDefault("STORAGE_WATCH", true)
	v.SetDefault("MONGODB_DATABASE", "drilldocs")
	v.SetDefault("MONGODB_COLLECTION", "kv")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("POSTGRES_TABLE", "drilldocs_kv")
	v.SetDefault("MINIO_BUCKET", "drilldocs")
	v.SetDefault("MEILI_INDEX", "drilldocs_documents")
	v.SetDefault("EDITOR_CHANGE_DEBOUNCE_MS", 300)
	v.SetDefault("EDITOR_FOCUS_WINDOW_MS", 5000)
	v.SetDefault("EDITOR_FOCUS_POLL_MS", 1000)
	v.SetDefault("AUTOSAVE_INTERVAL_MS", 10000)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // SSE change stream is long-lived
			CORSOrigins:  splitList(v.GetString("CORS_ORIGINS")),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("STORAGE_BACKEND")),
			Dir:       v.GetString("STORAGE_DIR"),
			KeyPrefix: v.GetString("STORAGE_KEY_PREFIX"),
			Watch:     v.GetBool("STORAGE_WATCH"),
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("MONGODB_URI"),
			Database:   v.GetString("MONGODB_DATABASE"),
			Collection: v.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Postgres: PostgresConfig{
			URL:   v.GetString("DATABASE_URL"),
			Table: v.GetString("POSTGRES_TABLE"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Search: SearchConfig{
			MeiliURL: v.GetString("MEILI_URL"),
			MeiliKey: v.GetString("MEILI_API_KEY"),
			Index:    v.GetString("MEILI_INDEX"),
		},
		Editor: EditorConfig{
			ChangeDebounce:   time.Duration(v.GetInt("EDITOR_CHANGE_DEBOUNCE_MS")) * time.Millisecond,
			FocusWindow:      time.Duration(v.GetInt("EDITOR_FOCUS_WINDOW_MS")) * time.Millisecond,
			FocusPoll:        time.Duration(v.GetInt("EDITOR_FOCUS_POLL_MS")) * time.Millisecond,
			AutosaveInterval: time.Duration(v.GetInt("AUTOSAVE_INTERVAL_MS")) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		TaxonomyFile: v.GetString("TAXONOMY_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend selection and that every editor timer is positive.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Backend, validation.Required,
			validation.In(BackendMemory, BackendFile, BackendRedis, BackendMongo, BackendPostgres)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Editor,
		validation.Field(&c.Editor.ChangeDebounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Editor.FocusWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Editor.FocusPoll, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Editor.AutosaveInterval, validation.Required, validation.Min(time.Millisecond)),
	)
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
