package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	AppId       string

	MongoURI string
	DBName   string

	// Secret used to sign the tokens carried on queue->engine callbacks.
	CallbackSecret string
	// Base URL the dispatcher uses to reach the stage callback endpoints.
	CallbackBaseURL string

	RedisAddr     string
	RedisPassword string
	TaskQueue     string

	// Object storage. Backend is "local" or "s3".
	StorageBackend string
	FSPath         string
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool

	// Optional legacy contacts database consulted by duplicate checks.
	ContactsDSN string

	// Import engine tuning.
	ChunkSize    int
	BatchSize    int
	QueueRetries int
	QueueTimeout time.Duration

	ReaperSchedule string
	// Jobs stuck mid-phase longer than this are re-queued by the reaper.
	StaleAfter time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "lead-import"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "lead-import"),

		CallbackSecret:  getEnv("CALLBACK_SECRET", "secret"),
		CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		TaskQueue:     getEnv("TASK_QUEUE", "import:tasks"),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		FSPath:         getEnv("FS_PATH", "./uploads"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("S3_BUCKET", "lead-import"),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:       getEnv("S3_USE_SSL", "true") == "true",

		ContactsDSN: getEnv("CONTACTS_DSN", ""),

		ChunkSize:    getEnvInt("IMPORT_CHUNK_SIZE", 500),
		BatchSize:    getEnvInt("IMPORT_BATCH_SIZE", 200),
		QueueRetries: getEnvInt("QUEUE_RETRIES", 3),
		QueueTimeout: getEnvDuration("QUEUE_TIMEOUT", 60*time.Second),

		ReaperSchedule: getEnv("REAPER_SCHEDULE", "*/2 * * * *"),
		StaleAfter:     getEnvDuration("STALE_AFTER", 5*time.Minute),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@lead-import.local"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
