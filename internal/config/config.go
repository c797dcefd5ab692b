package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string          `yaml:"addr"`
	JWTSecret      string          `yaml:"jwt_secret"`
	APITimeout     time.Duration   `yaml:"timeout"`
	DatabasePath   string          `yaml:"database_path"`
	TokenDuration  time.Duration   `yaml:"token_duration"`
	LogLevel       string          `yaml:"log_level"`
	MigrateOnStart bool            `yaml:"migrate_on_start"`
	Lifecycle      LifecycleConfig `yaml:"lifecycle"`
	Notify         NotifyConfig    `yaml:"notify"`
	Mail           MailConfig      `yaml:"mail"`
	Storage        StorageConfig   `yaml:"storage"`
	Policy         PolicyConfig    `yaml:"policy"`
}

type LifecycleConfig struct {
	// Guard is strict or permissive.
	Guard string `yaml:"guard"`
}

type NotifyConfig struct {
	// Mode is outbox or inline.
	Mode         string        `yaml:"mode"`
	WorkerCount  int           `yaml:"worker_count"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MailConfig struct {
	// Transport is smtp, sendgrid or log.
	Transport string     `yaml:"transport"`
	FromName  string     `yaml:"from_name"`
	From      string     `yaml:"from"`
	SMTP      SMTPConfig `yaml:"smtp"`
	// SendGridAPIKey comes from INTAKE_SENDGRID_API_KEY.
	SendGridAPIKey string `yaml:"-"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

type StorageConfig struct {
	// Backend is local or gcs.
	Backend string `yaml:"backend"`
	// Download is redirect or stream.
	Download      string        `yaml:"download"`
	LocalDir      string        `yaml:"local_dir"`
	PublicBaseURL string        `yaml:"public_base_url"`
	GCSBucket     string        `yaml:"gcs_bucket"`
	SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
	// CredentialsFile defaults to GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsFile string `yaml:"credentials_file"`
}

type PolicyConfig struct {
	// Overrides maps an action key to public, reviewer or superuser.
	Overrides map[string]string `yaml:"overrides"`
}

// LoadConfig reads .env (if present), then INTAKE_* environment variables,
// then the optional YAML file at path, which wins over the environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:           getEnv("INTAKE_ADDR", ":8080"),
		JWTSecret:      getEnv("INTAKE_JWT_SECRET", insecureJWTSecret),
		APITimeout:     getDuration("INTAKE_TIMEOUT", 15*time.Second),
		DatabasePath:   getEnv("INTAKE_DATABASE_PATH", "intake.db"),
		TokenDuration:  getDuration("INTAKE_TOKEN_DURATION", time.Hour),
		LogLevel:       getEnv("INTAKE_LOG_LEVEL", "info"),
		MigrateOnStart: getBool("INTAKE_MIGRATE_ON_START", true),
		Lifecycle: LifecycleConfig{
			Guard: getEnv("INTAKE_LIFECYCLE_GUARD", "strict"),
		},
		Notify: NotifyConfig{
			Mode:         getEnv("INTAKE_NOTIFY_MODE", "outbox"),
			WorkerCount:  getInt("INTAKE_NOTIFY_WORKERS", 2),
			MaxAttempts:  getInt("INTAKE_NOTIFY_MAX_ATTEMPTS", 5),
			PollInterval: getDuration("INTAKE_NOTIFY_POLL_INTERVAL", 500*time.Millisecond),
		},
		Mail: MailConfig{
			Transport: getEnv("INTAKE_MAIL_TRANSPORT", "log"),
			FromName:  getEnv("INTAKE_MAIL_FROM_NAME", "Project Intake"),
			From:      getEnv("INTAKE_MAIL_FROM", "noreply@example.com"),
			SMTP: SMTPConfig{
				Host:     getEnv("INTAKE_SMTP_HOST", ""),
				Port:     getInt("INTAKE_SMTP_PORT", 587),
				Username: getEnv("INTAKE_SMTP_USERNAME", ""),
				Password: getEnv("INTAKE_SMTP_PASSWORD", ""),
			},
			SendGridAPIKey: getEnv("INTAKE_SENDGRID_API_KEY", ""),
		},
		Storage: StorageConfig{
			Backend:         getEnv("INTAKE_STORAGE_BACKEND", "local"),
			Download:        getEnv("INTAKE_STORAGE_DOWNLOAD", "stream"),
			LocalDir:        getEnv("INTAKE_STORAGE_LOCAL_DIR", "media"),
			PublicBaseURL:   getEnv("INTAKE_STORAGE_PUBLIC_BASE_URL", ""),
			GCSBucket:       getEnv("INTAKE_GCS_BUCKET", ""),
			SignedURLTTL:    getDuration("INTAKE_SIGNED_URL_TTL", 15*time.Minute),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	env := strings.ToLower(getEnv("INTAKE_ENV", "development"))
	if c.JWTSecret == "" {
		add("jwt_secret is required")
	} else if c.JWTSecret == insecureJWTSecret && env != "development" {
		add("insecure default jwt_secret used in %s environment", env)
	}
	if c.Addr == "" {
		add("addr is required")
	}
	if c.DatabasePath == "" {
		add("database_path is required")
	}
	if c.TokenDuration <= 0 {
		add("token_duration must be positive")
	}

	switch c.Lifecycle.Guard {
	case "strict", "permissive":
	default:
		add("lifecycle.guard must be strict or permissive, got %q", c.Lifecycle.Guard)
	}

	switch c.Notify.Mode {
	case "outbox":
		if c.Notify.WorkerCount <= 0 {
			add("notify.worker_count must be positive in outbox mode")
		}
	case "inline":
	default:
		add("notify.mode must be outbox or inline, got %q", c.Notify.Mode)
	}

	switch c.Mail.Transport {
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			add("mail.smtp.host is required for the smtp transport")
		}
	case "sendgrid":
		if c.Mail.SendGridAPIKey == "" {
			add("INTAKE_SENDGRID_API_KEY is required for the sendgrid transport")
		}
	case "log":
	default:
		add("mail.transport must be smtp, sendgrid or log, got %q", c.Mail.Transport)
	}
	if c.Mail.Transport != "log" && c.Mail.From == "" {
		add("mail.from is required")
	}

	switch c.Storage.Download {
	case "redirect", "stream":
	default:
		add("storage.download must be redirect or stream, got %q", c.Storage.Download)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			add("storage.local_dir is required for the local backend")
		}
		if c.Storage.Download == "redirect" && c.Storage.PublicBaseURL == "" {
			add("storage.public_base_url is required to redirect local downloads")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			add("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		add("storage.backend must be local or gcs, got %q", c.Storage.Backend)
	}

	for action, capability := range c.Policy.Overrides {
		switch capability {
		case "public", "reviewer", "superuser":
		default:
			add("policy.overrides[%s] must be public, reviewer or superuser, got %q", action, capability)
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
