package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/readmate-rag/internal/observability/logging"
)

type Config struct {
	LogLevel string

	EmbedBackend string
	LLMBackend   string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIChatModel       string
	OpenAIEmbedModel      string
	OpenAIEmbedDimensions int

	EmbedBatchSize int

	// MaxSourceBytes caps the size of one ingest source. Zero disables the cap.
	MaxSourceBytes int64

	LLMRetryAttempts int
	LLMTimeout       time.Duration
	LLMRateLimit     float64

	StorageBackend string
	StoragePath    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOPrefix    string
	MinIOUseSSL    bool
	MinIORegion    string

	BundleCompression  string
	BundleCacheEntries int

	RetrieveTopK  int
	RetrieveAlpha float64

	// PostgresDSN enables the ingest catalog when set.
	PostgresDSN string

	NATSURL           string
	NATSSubject       string
	NATSMaxDeliveries int

	WorkerMetricsPort string
}

// LoadDotEnv copies variables from the given files (default .env) into the
// process environment without overriding values that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		EmbedBackend: mustEnv("EMBED_BACKEND", "ollama"),
		LLMBackend:   mustEnv("LLM_BACKEND", "ollama"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "bge-m3"),

		OpenAIAPIKey:          mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         mustEnv("OPENAI_BASE_URL", ""),
		OpenAIChatModel:       mustEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel:      mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAIEmbedDimensions: mustEnvInt("OPENAI_EMBED_DIMENSIONS", 0),

		EmbedBatchSize: mustEnvInt("EMBED_BATCH_SIZE", 64),

		MaxSourceBytes: int64(mustEnvInt("MAX_SOURCE_BYTES", 64<<20)),

		LLMRetryAttempts: mustEnvInt("LLM_RETRY_ATTEMPTS", 3),
		LLMTimeout:       time.Duration(mustEnvInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		LLMRateLimit:     mustEnvFloat("LLM_RATE_LIMIT", 0),

		StorageBackend: mustEnv("STORAGE_BACKEND", "localfs"),
		StoragePath:    mustEnv("STORAGE_PATH", "./data/rag_store"),

		MinIOEndpoint:  mustEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: mustEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: mustEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    mustEnv("MINIO_BUCKET", "readmate"),
		MinIOPrefix:    mustEnv("MINIO_PREFIX", "rag_store"),
		MinIOUseSSL:    mustEnvBool("MINIO_USE_SSL", false),
		MinIORegion:    mustEnv("MINIO_REGION", ""),

		BundleCompression:  mustEnv("BUNDLE_COMPRESSION", "zstd"),
		BundleCacheEntries: mustEnvInt("BUNDLE_CACHE_ENTRIES", 32),

		RetrieveTopK:  mustEnvInt("RETRIEVE_TOP_K", 6),
		RetrieveAlpha: mustEnvFloat("RETRIEVE_ALPHA", 0.5),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:           mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:       mustEnv("NATS_SUBJECT", "readmate.ingest"),
		NATSMaxDeliveries: mustEnvInt("NATS_MAX_DELIVERIES", 5),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// Validate rejects settings that would only fail later, deep inside a command.
func (c Config) Validate() error {
	var errs []error
	check := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unsupported value %q (want one of %s)", name, value, strings.Join(allowed, ", ")))
	}
	check("EMBED_BACKEND", c.EmbedBackend, "ollama", "openai")
	check("LLM_BACKEND", c.LLMBackend, "ollama", "openai")
	check("STORAGE_BACKEND", c.StorageBackend, "localfs", "minio")
	check("BUNDLE_COMPRESSION", c.BundleCompression, "none", "zstd", "lz4")
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if c.RetrieveTopK < 0 {
		errs = append(errs, fmt.Errorf("RETRIEVE_TOP_K: must be >= 0, got %d", c.RetrieveTopK))
	}
	if c.RetrieveAlpha < 0 || c.RetrieveAlpha > 1 {
		errs = append(errs, fmt.Errorf("RETRIEVE_ALPHA: must be within [0,1], got %v", c.RetrieveAlpha))
	}
	if c.MaxSourceBytes < 0 {
		errs = append(errs, fmt.Errorf("MAX_SOURCE_BYTES: must be >= 0, got %d", c.MaxSourceBytes))
	}
	usesOpenAI := strings.EqualFold(c.EmbedBackend, "openai") || strings.EqualFold(c.LLMBackend, "openai")
	if usesOpenAI && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY: required for the openai backend"))
	}
	return errors.Join(errs...)
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
