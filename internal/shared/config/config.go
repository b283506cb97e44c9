package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for both binaries.
type Config struct {
	AppEnv        string
	EncryptionKey string
	Postgres      PostgresConfig
	Worker        WorkerConfig
	OCR           OCRConfig
	Download      DownloadConfig
	Storage       StorageConfig
	Classifier    ClassifierConfig
	API           APIConfig
	Redis         RedisConfig
	Telegram      TelegramConfig
}

type PostgresConfig struct {
	URL string
}

// WorkerConfig drives the Scheduler Loop and the Job Processor.
type WorkerConfig struct {
	ID           string
	SharedSecret string
	ListenAddr   string
	MaxAttempts  int
	BatchSize    int
	PollInterval time.Duration
	Concurrency  int
	LeaseTimeout time.Duration
	DrainTimeout time.Duration
	PreviewChars int
}

type OCRConfig struct {
	Provider        string // "ocrspace" or "gcp_vision"
	APIKey          string
	APIURL          string
	Language        string
	Engine          int
	Timeout         time.Duration
	CredentialsFile string
}

type DownloadConfig struct {
	Timeout      time.Duration
	MaxBytes     int64
	SignedURLTTL time.Duration
}

type StorageConfig struct {
	SupabaseURL string
	ServiceKey  string
	Bucket      string
}

type ClassifierConfig struct {
	Keywords []string
}

type APIConfig struct {
	ListenAddr    string
	JWTSecret     string
	WorkerURL     string
	WorkerTimeout time.Duration
	CORSOrigins   []string
}

type RedisConfig struct {
	Addr         string
	NudgeChannel string
}

type TelegramConfig struct {
	ModeratorToken string
	ReviewChatID   int64
	ModeratorIDs   []int64
}

// DefaultKeywords is the bilingual keyword list used when VERIFY_KEYWORDS is unset.
// Entries must not be substrings of each other, or one word would count twice.
var DefaultKeywords = []string{
	"студент", "университет", "колледж", "факультет", "институт", "академия", "обучающ",
	"student", "university", "college", "faculty", "institute", "academy",
}

var envBindings = map[string]string{
	"app.env":                   "APP_ENV",
	"encryption.key":            "ENCRYPTION_KEY",
	"postgres.url":              "DATABASE_URL",
	"worker.id":                 "WORKER_ID",
	"worker.shared_secret":      "WORKER_SHARED_SECRET",
	"worker.listen_addr":        "WORKER_LISTEN_ADDR",
	"worker.max_attempts":       "OCR_MAX_ATTEMPTS",
	"worker.batch_size":         "OCR_BATCH_SIZE",
	"worker.poll_interval":      "OCR_POLL_INTERVAL",
	"worker.concurrency":        "OCR_CONCURRENCY",
	"worker.lease_timeout":      "OCR_LEASE_TIMEOUT",
	"worker.drain_timeout":      "OCR_DRAIN_TIMEOUT",
	"worker.preview_chars":      "OCR_PREVIEW_CHARS",
	"ocr.provider":              "OCR_PROVIDER",
	"ocr.api_key":               "OCR_API_KEY",
	"ocr.api_url":               "OCR_API_URL",
	"ocr.language":              "OCR_LANGUAGE",
	"ocr.engine":                "OCR_ENGINE",
	"ocr.timeout":               "OCR_TIMEOUT",
	"ocr.credentials_file":      "GCP_CREDENTIALS_FILE",
	"download.timeout":          "DOWNLOAD_TIMEOUT",
	"download.max_bytes":        "DOWNLOAD_MAX_BYTES",
	"download.signed_url_ttl":   "SIGNED_URL_TTL",
	"storage.supabase_url":      "SUPABASE_URL",
	"storage.service_key":       "SUPABASE_SERVICE_KEY",
	"storage.bucket":            "STORAGE_BUCKET",
	"classifier.keywords":       "VERIFY_KEYWORDS",
	"api.listen_addr":           "API_LISTEN_ADDR",
	"api.jwt_secret":            "AUTH_JWT_SECRET",
	"api.worker_url":            "WORKER_URL",
	"api.worker_timeout":        "WORKER_NUDGE_TIMEOUT",
	"api.cors_origins":          "API_CORS_ORIGINS",
	"redis.addr":                "REDIS_ADDR",
	"redis.nudge_channel":       "REDIS_NUDGE_CHANNEL",
	"telegram.moderator_token":  "TELEGRAM_MODERATOR_TOKEN",
	"telegram.review_chat_id":   "TELEGRAM_REVIEW_CHAT_ID",
	"telegram.moderator_ids":    "TELEGRAM_MODERATOR_IDS",
}

func setDefaults(v *viper.Viper) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	v.SetDefault("app.env", "dev")
	v.SetDefault("worker.id", fmt.Sprintf("%s-%d", hostname, os.Getpid()))
	v.SetDefault("worker.listen_addr", ":8081")
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.batch_size", 2)
	v.SetDefault("worker.poll_interval", 10*time.Second)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.lease_timeout", 5*time.Minute)
	v.SetDefault("worker.drain_timeout", 30*time.Second)
	v.SetDefault("worker.preview_chars", 1000)
	v.SetDefault("ocr.provider", "ocrspace")
	v.SetDefault("ocr.api_url", "https://api.ocr.space/parse/image")
	v.SetDefault("ocr.language", "rus")
	v.SetDefault("ocr.engine", 2)
	v.SetDefault("ocr.timeout", 30*time.Second)
	v.SetDefault("download.timeout", 15*time.Second)
	v.SetDefault("download.max_bytes", int64(12<<20))
	v.SetDefault("download.signed_url_ttl", 180*time.Second)
	v.SetDefault("storage.bucket", "student-docs")
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.worker_timeout", 5*time.Second)
	v.SetDefault("api.cors_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("redis.nudge_channel", "verification:nudge")
}

// Load loads configuration from the environment (and an optional .env file).
// It validates only what both binaries need; each binary calls its own
// Validate* method for the rest.
func Load() (*Config, error) {
	// 1. Load .env into the process environment. Missing file is fine in prod.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// 2. Bind keys to env var names
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("could not bind %s: %w", key, err)
		}
	}

	// 3. Defaults
	setDefaults(v)

	// 4. Read values
	cfg := Config{
		AppEnv:        v.GetString("app.env"),
		EncryptionKey: v.GetString("encryption.key"),
		Postgres:      PostgresConfig{URL: v.GetString("postgres.url")},
		Worker: WorkerConfig{
			ID:           v.GetString("worker.id"),
			SharedSecret: v.GetString("worker.shared_secret"),
			ListenAddr:   v.GetString("worker.listen_addr"),
			MaxAttempts:  v.GetInt("worker.max_attempts"),
			BatchSize:    v.GetInt("worker.batch_size"),
			PollInterval: v.GetDuration("worker.poll_interval"),
			Concurrency:  v.GetInt("worker.concurrency"),
			LeaseTimeout: v.GetDuration("worker.lease_timeout"),
			DrainTimeout: v.GetDuration("worker.drain_timeout"),
			PreviewChars: v.GetInt("worker.preview_chars"),
		},
		OCR: OCRConfig{
			Provider:        strings.ToLower(v.GetString("ocr.provider")),
			APIKey:          v.GetString("ocr.api_key"),
			APIURL:          v.GetString("ocr.api_url"),
			Language:        v.GetString("ocr.language"),
			Engine:          v.GetInt("ocr.engine"),
			Timeout:         v.GetDuration("ocr.timeout"),
			CredentialsFile: v.GetString("ocr.credentials_file"),
		},
		Download: DownloadConfig{
			Timeout:      v.GetDuration("download.timeout"),
			MaxBytes:     v.GetInt64("download.max_bytes"),
			SignedURLTTL: v.GetDuration("download.signed_url_ttl"),
		},
		Storage: StorageConfig{
			SupabaseURL: v.GetString("storage.supabase_url"),
			ServiceKey:  v.GetString("storage.service_key"),
			Bucket:      v.GetString("storage.bucket"),
		},
		Classifier: ClassifierConfig{
			Keywords: ParseList(v.GetString("classifier.keywords")),
		},
		API: APIConfig{
			ListenAddr:    v.GetString("api.listen_addr"),
			JWTSecret:     v.GetString("api.jwt_secret"),
			WorkerURL:     strings.TrimRight(v.GetString("api.worker_url"), "/"),
			WorkerTimeout: v.GetDuration("api.worker_timeout"),
			CORSOrigins:   ParseList(v.GetString("api.cors_origins")),
		},
		Redis: RedisConfig{
			Addr:         v.GetString("redis.addr"),
			NudgeChannel: v.GetString("redis.nudge_channel"),
		},
		Telegram: TelegramConfig{
			ModeratorToken: v.GetString("telegram.moderator_token"),
			ReviewChatID:   v.GetInt64("telegram.review_chat_id"),
		},
	}
	if len(cfg.Classifier.Keywords) == 0 {
		cfg.Classifier.Keywords = DefaultKeywords
	}

	ids, err := parseIDList(v.GetString("telegram.moderator_ids"))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_MODERATOR_IDS: %w", err)
	}
	cfg.Telegram.ModeratorIDs = ids

	// 5. Validation
	if cfg.EncryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY is not set in environment or .env file")
	}
	if len(cfg.EncryptionKey) != 64 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be a 64-character hex string (32 bytes), but got %d chars", len(cfg.EncryptionKey))
	}
	if cfg.Postgres.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	return &cfg, nil
}

// ValidateWorker checks the keys only the OCR worker needs.
func (c *Config) ValidateWorker() error {
	w := c.Worker
	if w.SharedSecret == "" {
		return errors.New("WORKER_SHARED_SECRET is not set")
	}
	if w.MaxAttempts < 1 {
		return fmt.Errorf("OCR_MAX_ATTEMPTS must be >= 1, got %d", w.MaxAttempts)
	}
	if w.BatchSize < 1 {
		return fmt.Errorf("OCR_BATCH_SIZE must be >= 1, got %d", w.BatchSize)
	}
	if w.Concurrency < 1 {
		return fmt.Errorf("OCR_CONCURRENCY must be >= 1, got %d", w.Concurrency)
	}
	if w.PollInterval <= 0 || w.LeaseTimeout <= 0 {
		return errors.New("OCR_POLL_INTERVAL and OCR_LEASE_TIMEOUT must be positive")
	}
	if c.Download.MaxBytes <= 0 {
		return errors.New("DOWNLOAD_MAX_BYTES must be positive")
	}
	switch c.OCR.Provider {
	case "ocrspace":
		if c.OCR.APIKey == "" {
			return errors.New("OCR_API_KEY is required for the ocrspace provider")
		}
	case "gcp_vision":
	default:
		return fmt.Errorf("unknown OCR_PROVIDER: %s", c.OCR.Provider)
	}
	if c.Storage.SupabaseURL == "" || c.Storage.ServiceKey == "" {
		return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	return nil
}

// ValidateServer checks the keys only the application API needs.
func (c *Config) ValidateServer() error {
	if c.API.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is not set")
	}
	if c.Redis.Addr == "" && c.API.WorkerURL != "" && c.Worker.SharedSecret == "" {
		return errors.New("WORKER_SHARED_SECRET is required to nudge WORKER_URL")
	}
	return nil
}

// ParseList splits a comma-separated value, trimming and lowercasing entries.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDList(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id int64
		if _, err := fmt.Sscan(part, &id); err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
