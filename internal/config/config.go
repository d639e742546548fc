package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPPort    string
	// NodeID seeds the snowflake generator; each process needs its own.
	NodeID int64

	OTLPEndpoint string
	OTLPProtocol string
	OTLPEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string

	Email     EmailConfig
	Storage   StorageConfig
	Payments  PaymentConfig
	Scheduler SchedulerConfig
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval int // seconds
	BatchSize   int
	// EnabledJobs limits the jobs a process runs. Empty runs all of them.
	EnabledJobs []string
}

type PaymentConfig struct {
	// WebhookSecrets maps a provider name to its webhook signing secret.
	WebhookSecrets map[string]string
}

type EmailConfig struct {
	Provider     string // smtp, ses, noop
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SESRegion    string
}

type StorageConfig struct {
	Provider       string // local, s3
	LocalDir       string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3KeyPrefix    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "ledgerbook"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		HTTPPort:     getenv("HTTP_PORT", "8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol: strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		OTLPEnabled:  getenvBool("OTLP_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ledgerbook"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			From:         getenv("EMAIL_FROM", "billing@localhost"),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUser:     getenv("SMTP_USER", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SESRegion:    getenv("SES_REGION", "us-east-1"),
		},
		Storage: StorageConfig{
			Provider:       strings.ToLower(getenv("STORAGE_PROVIDER", "local")),
			LocalDir:       getenv("STORAGE_LOCAL_DIR", "./data/documents"),
			S3Bucket:       getenv("S3_BUCKET", ""),
			S3Region:       getenv("S3_REGION", "us-east-1"),
			S3Endpoint:     strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			S3AccessKey:    getenv("S3_ACCESS_KEY", ""),
			S3SecretKey:    getenv("S3_SECRET_KEY", ""),
			S3UsePathStyle: getenvBool("S3_USE_PATH_STYLE", false),
			S3KeyPrefix:    getenv("S3_KEY_PREFIX", "documents"),
		},
		Payments: PaymentConfig{
			WebhookSecrets: map[string]string{
				"stripe": getenv("STRIPE_WEBHOOK_SECRET", ""),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvInt("SCHEDULER_RUN_INTERVAL", 60),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 50),
			EnabledJobs: getenvList("SCHEDULER_ENABLED_JOBS"),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
