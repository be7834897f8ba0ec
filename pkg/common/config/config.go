package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	// Seeding
	DataDir         string
	AutoSeed        bool
	SeedSourcesFile string

	// Redis (optional counts cache)
	RedisEnabled   bool
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	CountsCacheTTL time.Duration

	// Kafka (optional ingestion reports)
	KafkaBrokers     []string
	KafkaReportTopic string

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "carepulse"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "carepulse123"),
		PostgresDB:       getEnv("POSTGRES_DB", "carepulse"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DBMaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),

		DataDir:         getEnv("DATA_DIR", "/mnt/data"),
		AutoSeed:        getBoolEnv("AUTO_SEED", true),
		SeedSourcesFile: getEnv("SEED_SOURCES_FILE", ""),

		RedisEnabled:   getBoolEnv("REDIS_ENABLED", false),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		CountsCacheTTL: getDuration("COUNTS_CACHE_TTL", 30*time.Second),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaReportTopic: getEnv("KAFKA_REPORT_TOPIC", "ingestion-reports"),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
