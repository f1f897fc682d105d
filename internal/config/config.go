package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AssemblyAIKey     string        `env:"ASSEMBLYAI_API_KEY,required"`
	AssemblyAIBaseURL string        `env:"ASSEMBLYAI_BASE_URL" envDefault:"https://api.assemblyai.com/v2"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Polling bounds for a single transcription job.
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"120"`
	PollDeadline    time.Duration `env:"POLL_DEADLINE" envDefault:"10m"`

	// UploadDir holds request-scoped temp audio; DataDir holds the library.
	UploadDir   string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	MaxUploadMB int64  `env:"MAX_UPLOAD_MB" envDefault:"50"`

	// StoreBackend selects where recording metadata lives: "file" or "postgres".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"`
	DatabaseURL  string `env:"DATABASE_URL"`

	S3 S3Config

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"voicecoach"`
	MQTTTopic     string `env:"MQTT_TOPIC_PREFIX" envDefault:"voicecoach"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// InboxDir, when set, is watched for audio files to add to the library.
	InboxDir string `env:"INBOX_DIR"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":3000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`

	// Per-client limit on POST /analyze, which spends provider quota.
	AnalyzeRPS   float64 `env:"ANALYZE_RATE_LIMIT" envDefault:"1"`
	AnalyzeBurst int     `env:"ANALYZE_BURST" envDefault:"5"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible audio store.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	DatabaseURL  string
	StoreBackend string
	DataDir      string
	InboxDir     string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.StoreBackend != "" {
		cfg.StoreBackend = overrides.StoreBackend
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.InboxDir != "" {
		cfg.InboxDir = overrides.InboxDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be file or postgres", c.StoreBackend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid POLL_INTERVAL %s: must be > 0", c.PollInterval)
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("invalid POLL_MAX_ATTEMPTS %d: must be >= 1", c.PollMaxAttempts)
	}
	if c.PollDeadline <= 0 {
		return fmt.Errorf("invalid POLL_DEADLINE %s: must be > 0", c.PollDeadline)
	}
	if c.AnalyzeRPS <= 0 || c.AnalyzeBurst < 1 {
		return fmt.Errorf("invalid ANALYZE_RATE_LIMIT %v / ANALYZE_BURST %d: must be > 0", c.AnalyzeRPS, c.AnalyzeBurst)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("invalid MAX_UPLOAD_MB %d: must be >= 1", c.MaxUploadMB)
	}
	return nil
}
