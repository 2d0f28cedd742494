package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Auth mode selects how session tokens are minted and resolved.
const (
	AuthModeSession = "session"
	AuthModeJWT     = "jwt"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	CORS       CORSConfig
	Storage    StorageConfig
	Broker     BrokerConfig
	Logging    LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	// Mode is "session" (opaque DB-backed tokens, the default) or "jwt".
	Mode string
	// JWTSecret signs tokens in jwt mode; required there, unused otherwise.
	JWTSecret string
	// CookieSecure marks the session cookie Secure; required for SameSite=None
	// cross-site deployments.
	CookieSecure bool
}

type CORSConfig struct {
	// AllowedOrigins are exact origins, e.g. "http://localhost:4989".
	AllowedOrigins []string
	// AllowedOriginSuffixes match deployment-platform hosts by domain suffix,
	// e.g. ".vercel.app" allows any https origin under vercel.app.
	AllowedOriginSuffixes []string
}

type StorageConfig struct {
	// Backend is "minio", "gcs", or empty to disable avatar uploads.
	Backend       string
	Bucket        string
	PublicBaseURL string
	Minio         MinioConfig
	GCS           GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type BrokerConfig struct {
	// Backend is "rabbitmq", "pubsub", or empty to disable task events.
	Backend  string
	Topic    string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type LoggingConfig struct {
	Development bool
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "taskdeck"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "taskdeck_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth: AuthConfig{
			Mode:         getEnv("AUTH_MODE", AuthModeSession),
			JWTSecret:    getEnv("JWT_SECRET", ""),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:        getEnvList("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:4989"),
			AllowedOriginSuffixes: getEnvList("CORS_ALLOWED_ORIGIN_SUFFIXES", ".vercel.app,.up.railway.app"),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", ""),
			Bucket:        getEnv("STORAGE_BUCKET", "taskdeck-avatars"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("STORAGE_BUCKET", "taskdeck-avatars"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("STORAGE_BUCKET", "taskdeck-avatars"),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		Broker: BrokerConfig{
			Backend: getEnv("BROKER_BACKEND", ""),
			Topic:   getEnv("BROKER_TOPIC", "task-events"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 0),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Logging: LoggingConfig{
			Development: getEnvBool("LOG_DEVELOPMENT", os.Getenv("ENV") == "dev"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(valueStr)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}
