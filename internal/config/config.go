package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// DefaultNoAnswerMessage is sent when the bot is mentioned but no knowledge answer exists
const DefaultNoAnswerMessage = "Sorry, I couldn't find an answer to that yet. A member of our support team will follow up shortly."

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL with the pgvector extension
	Version     string
	LogLevel    string

	// Issue lifecycle and auto-reply thresholds
	IssueTimeoutMinutes          int     // Deadline offset for new issues
	RelevanceThreshold           int     // Minimum staff reply relevance (0-100, inclusive)
	AutoReplyConfidenceThreshold int     // Minimum classifier/retrieval confidence (0-100, inclusive)
	BotNames                     string  // Comma-separated bot name aliases
	NoAnswerMessage              string  // Fallback reply when mentioned but nothing was found
	SimilarityThreshold          float64 // Vector similarity floor (0-1)
	KnowledgeResultLimit         int     // Max retrieval candidates
	SweepIntervalMinutes         int     // Timeout sweep period, 0 disables
	AutoReplyDefaultEnabled      bool    // Auto-reply setting for newly seen conversations

	// AI backends
	AIPrimaryBackend      string   // openai | azure | local | cli
	AIBackendOrder        []string // Fixed fallback order
	EmbeddingBackendOrder []string // Embedding preference order
	AITimeoutSeconds      int      // Per-call timeout

	OpenAIKey            string
	OpenAIModel          string
	OpenAIEmbeddingModel string

	AzureOpenAIEndpoint            string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	AzureTenantID                  string
	AzureClientID                  string
	AzureClientSecret              string

	LocalAIBaseURL        string
	LocalAIModel          string
	LocalAIEmbeddingModel string

	AICLICommand string
	AICLIArgs    []string
	AICLIHome    string // HOME for the CLI process, where its OAuth login lives

	// Retrieval infrastructure
	VectorStore           string // pgvector | qdrant
	QdrantHost            string
	QdrantPort            int
	QdrantAPIKey          string
	RedisURL              string
	EmbeddingBatchSize    int
	EmbeddingBatchPauseMS int

	// Outbound email and jobs
	SendGridAPIKey string
	SupportEmail   string
	ReplyFromEmail string
	K8sNamespace   string
	EmbedJobImage  string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		IssueTimeoutMinutes:          getEnvInt("ISSUE_TIMEOUT_MINUTES", 60),
		RelevanceThreshold:           getEnvInt("RELEVANCE_THRESHOLD", 60),
		AutoReplyConfidenceThreshold: getEnvInt("AUTO_REPLY_CONFIDENCE_THRESHOLD", 50),
		BotNames:                     os.Getenv("BOT_NAMES"),
		NoAnswerMessage:              getEnv("NO_ANSWER_MESSAGE", DefaultNoAnswerMessage),
		SimilarityThreshold:          getEnvFloat("SIMILARITY_THRESHOLD", 0.3),
		KnowledgeResultLimit:         getEnvInt("KNOWLEDGE_RESULT_LIMIT", 5),
		SweepIntervalMinutes:         getEnvInt("SWEEP_INTERVAL_MINUTES", 5),
		AutoReplyDefaultEnabled:      getEnvBool("AUTO_REPLY_DEFAULT_ENABLED", true),

		AIPrimaryBackend:      getEnv("AI_PRIMARY_BACKEND", "openai"),
		AIBackendOrder:        getEnvList("AI_BACKEND_ORDER", []string{"openai", "azure", "local", "cli"}),
		EmbeddingBackendOrder: getEnvList("EMBEDDING_BACKEND_ORDER", []string{"openai", "azure", "local"}),
		AITimeoutSeconds:      getEnvInt("AI_TIMEOUT_SECONDS", 30),

		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		AzureTenantID:                  os.Getenv("AZURE_TENANT_ID"),
		AzureClientID:                  os.Getenv("AZURE_CLIENT_ID"),
		AzureClientSecret:              os.Getenv("AZURE_CLIENT_SECRET"),

		LocalAIBaseURL:        getEnv("LOCAL_AI_BASE_URL", "http://localhost:11434/v1"),
		LocalAIModel:          getEnv("LOCAL_AI_MODEL", "llama3.1"),
		LocalAIEmbeddingModel: getEnv("LOCAL_AI_EMBEDDING_MODEL", "nomic-embed-text"),

		AICLICommand: os.Getenv("AI_CLI_COMMAND"),
		AICLIArgs:    strings.Fields(os.Getenv("AI_CLI_ARGS")),
		AICLIHome:    os.Getenv("AI_CLI_HOME"),

		VectorStore:           getEnv("VECTOR_STORE", "pgvector"),
		QdrantHost:            getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:            getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:          os.Getenv("QDRANT_API_KEY"),
		RedisURL:              os.Getenv("REDIS_URL"),
		EmbeddingBatchSize:    getEnvInt("EMBEDDING_BATCH_SIZE", 10),
		EmbeddingBatchPauseMS: getEnvInt("EMBEDDING_BATCH_PAUSE_MS", 1000),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SupportEmail:   os.Getenv("SUPPORT_EMAIL"),
		ReplyFromEmail: getEnv("REPLY_FROM_EMAIL", "support-bot@example.com"),
		K8sNamespace:   getEnv("K8S_NAMESPACE", "supportwatch"),
		EmbedJobImage:  os.Getenv("EMBED_JOB_IMAGE"),
	}
}

// BotAliases returns the configured bot names, trimmed, empty entries removed
func (c *Config) BotAliases() []string {
	return splitList(c.BotNames)
}

// HasAzureOAuth reports whether the OAuth-authenticated cloud backend is configured
func (c *Config) HasAzureOAuth() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureClientID != "" && c.AzureClientSecret != "" && c.AzureTenantID != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default fallback
func getEnvList(key string, defaultValue []string) []string {
	if items := splitList(os.Getenv(key)); len(items) > 0 {
		return items
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "supportwatch").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
