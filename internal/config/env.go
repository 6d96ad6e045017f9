package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Extraction modes. In fast mode the OCR fallback is never attempted.
const (
	ExtractionModeFull = "full"
	ExtractionModeFast = "fast"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string
	CORSOrigins  []string
	JWTSecret    string
	RedisURL     string
	OTLPEndpoint string
	OTLPInsecure bool
	TraceSample  float64
	SecureCookie bool

	VectorBackend    string // pgvector | qdrant | memory
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	ChunkSize        int
	ChunkOverlap     int
	UpsertBatchSize  int
	EmbedConcurrency int
	MinTextLength    int
	ExtractionMode   string
	MaxUploadBytes   int64
	ReindexWorkers   int

	TopK           int
	ScoreThreshold float32

	FreeUploadLimit   int
	FreeQuestionLimit int

	ProviderTimeout    time.Duration
	ProviderMaxRetries int
	ProviderRPM        int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "gemini-embedding-001"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-2.0-flash-lite"),
		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TraceSample:  getEnvFloat("OTEL_TRACE_SAMPLE_RATIO", 0.1),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),

		VectorBackend:    getEnv("VECTOR_BACKEND", "pgvector"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "legal_documents"),

		ChunkSize:        getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		UpsertBatchSize:  getEnvInt("UPSERT_BATCH_SIZE", 100),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),
		MinTextLength:    getEnvInt("MIN_TEXT_LENGTH", 50),
		ExtractionMode:   getEnv("EXTRACTION_MODE", ExtractionModeFull),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		ReindexWorkers:   getEnvInt("REINDEX_WORKERS", 2),

		TopK:           getEnvInt("TOP_K", 5),
		ScoreThreshold: float32(getEnvFloat("SCORE_THRESHOLD", 0.7)),

		FreeUploadLimit:   getEnvInt("FREE_UPLOAD_LIMIT", 1),
		FreeQuestionLimit: getEnvInt("FREE_QUESTION_LIMIT", 4),

		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderMaxRetries: getEnvInt("PROVIDER_MAX_RETRIES", 2),
		ProviderRPM:        getEnvInt("PROVIDER_RPM", 600),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}
	if cfg.ExtractionMode != ExtractionModeFull && cfg.ExtractionMode != ExtractionModeFast {
		log.Printf("WARN: EXTRACTION_MODE=%q unknown, using %q", cfg.ExtractionMode, ExtractionModeFull)
		cfg.ExtractionMode = ExtractionModeFull
	}

	return cfg
}

// OCREnabled reports whether the image-based fallback may run.
func (c *Config) OCREnabled() bool {
	return c.ExtractionMode != ExtractionModeFast
}

// Presence reports which optional integrations are configured, without exposing values.
func (c *Config) Presence() map[string]bool {
	return map[string]bool{
		"DATABASE_URL":                c.DatabaseURL != "",
		"GEMINI_API_KEY":              c.AIAPIKey != "",
		"JWT_SECRET":                  c.JWTSecret != "",
		"BUCKET_NAME":                 c.BucketName != "",
		"REDIS_URL":                   c.RedisURL != "",
		"QDRANT_URL":                  c.QdrantURL != "",
		"QDRANT_API_KEY":              c.QdrantAPIKey != "",
		"OTEL_EXPORTER_OTLP_ENDPOINT": c.OTLPEndpoint != "",
	}
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
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
