package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	ServiceName string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Upstream UpstreamConfig
	Outbox   OutboxConfig
	Notifier NotifierConfig
	Duree    DureeConfig
	Prereqs  PrerequisConfig
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
	TxTimeout    time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB           int
	DialTimeout  time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// KafkaConfig describes the event bus connection shared by the relay and the notifier.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	ConsumerGroup     string
	DossierTopic      string
	CreateTopics      bool
	TopicPartitions   int32
	ReplicationFactor int16
}

// StorageConfig controls uploaded document storage and validation.
type StorageConfig struct {
	Dir              string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// UpstreamConfig points at the external identity and inscription collaborators.
type UpstreamConfig struct {
	UserServiceURL        string
	InscriptionServiceURL string
	Timeout               time.Duration
}

// OutboxConfig tunes the relay publishing committed events.
type OutboxConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// NotifierConfig tunes the downstream notification consumer.
type NotifierConfig struct {
	Workers   int
	Retries   int
	DedupTTL    time.Duration
	OutputDir   string
	MetricsPort int
}

// DureeConfig holds the doctoral duration thresholds in years.
type DureeConfig struct {
	Initiale int
	Maximale int
	Alerte   int
}

// PrerequisConfig holds the defense prerequisite thresholds.
type PrerequisConfig struct {
	MinArticles      int
	MinConferences   int
	MinTrainingHours int
}

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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ServiceName = v.GetString("SERVICE_NAME")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		TxTimeout:    parseDuration(v.GetString("DB_TX_TIMEOUT"), 10*time.Second),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		DialTimeout:  parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
		CacheEnabled: v.GetBool("REDIS_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("REDIS_CACHE_TTL"), 30*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		AllowedHeaders: splitAndTrim(v.GetString("ALLOWED_HEADERS")),
		MaxAge:         parseDuration(v.GetString("CORS_MAX_AGE"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:           splitAndTrim(v.GetString("KAFKA_BROKERS")),
		ClientID:          v.GetString("KAFKA_CLIENT_ID"),
		ConsumerGroup:     v.GetString("KAFKA_CONSUMER_GROUP"),
		DossierTopic:      v.GetString("KAFKA_DOSSIER_TOPIC"),
		CreateTopics:      v.GetBool("KAFKA_CREATE_TOPICS"),
		TopicPartitions:   v.GetInt32("KAFKA_TOPIC_PARTITIONS"),
		ReplicationFactor: int16(v.GetInt("KAFKA_REPLICATION_FACTOR")),
	}

	maxFileSize := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 20 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Dir:              v.GetString("STORAGE_DIR"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxFileSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
	}

	cfg.Upstream = UpstreamConfig{
		UserServiceURL:        strings.TrimRight(v.GetString("USER_SERVICE_URL"), "/"),
		InscriptionServiceURL: strings.TrimRight(v.GetString("INSCRIPTION_SERVICE_URL"), "/"),
		Timeout:               parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 3*time.Second),
	}

	cfg.Outbox = OutboxConfig{
		Enabled:      v.GetBool("OUTBOX_RELAY_ENABLED"),
		PollInterval: parseDuration(v.GetString("OUTBOX_POLL_INTERVAL"), time.Second),
		BatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
		MaxAttempts:  v.GetInt("OUTBOX_MAX_ATTEMPTS"),
	}

	cfg.Notifier = NotifierConfig{
		Workers:     v.GetInt("NOTIFIER_WORKERS"),
		Retries:     v.GetInt("NOTIFIER_RETRIES"),
		DedupTTL:    parseDuration(v.GetString("NOTIFIER_DEDUP_TTL"), 7*24*time.Hour),
		OutputDir:   v.GetString("NOTIFIER_OUTPUT_DIR"),
		MetricsPort: v.GetInt("NOTIFIER_METRICS_PORT"),
	}

	cfg.Duree = DureeConfig{
		Initiale: v.GetInt("DUREE_INITIALE"),
		Maximale: v.GetInt("DUREE_MAXIMALE"),
		Alerte:   v.GetInt("DUREE_ALERTE"),
	}

	cfg.Prereqs = PrerequisConfig{
		MinArticles:      v.GetInt("PREREQUIS_MIN_ARTICLES"),
		MinConferences:   v.GetInt("PREREQUIS_MIN_CONFERENCES"),
		MinTrainingHours: v.GetInt("PREREQUIS_MIN_HEURES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SERVICE_NAME", "doctorat-api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "doctorat")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_TX_TIMEOUT", "10s")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_CACHE_ENABLED", true)
	v.SetDefault("REDIS_CACHE_TTL", "30s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ALLOWED_HEADERS", "Authorization,Content-Type,X-Requested-With,X-Request-ID")
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "doctorat-api")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "notification-group")
	v.SetDefault("KAFKA_DOSSIER_TOPIC", "dossier-status-changed")
	v.SetDefault("KAFKA_CREATE_TOPICS", false)
	v.SetDefault("KAFKA_TOPIC_PARTITIONS", 3)
	v.SetDefault("KAFKA_REPLICATION_FACTOR", 1)

	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "30m")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("USER_SERVICE_URL", "http://localhost:8081")
	v.SetDefault("INSCRIPTION_SERVICE_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "3s")

	v.SetDefault("OUTBOX_RELAY_ENABLED", true)
	v.SetDefault("OUTBOX_POLL_INTERVAL", "1s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)

	v.SetDefault("NOTIFIER_WORKERS", 2)
	v.SetDefault("NOTIFIER_RETRIES", 3)
	v.SetDefault("NOTIFIER_DEDUP_TTL", "168h")
	v.SetDefault("NOTIFIER_OUTPUT_DIR", "./notifications")
	v.SetDefault("NOTIFIER_METRICS_PORT", 9091)

	v.SetDefault("DUREE_INITIALE", 3)
	v.SetDefault("DUREE_MAXIMALE", 6)
	v.SetDefault("DUREE_ALERTE", 5)

	v.SetDefault("PREREQUIS_MIN_ARTICLES", 2)
	v.SetDefault("PREREQUIS_MIN_CONFERENCES", 2)
	v.SetDefault("PREREQUIS_MIN_HEURES", 200)
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

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
