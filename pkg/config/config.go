package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	News      NewsConfig
	NLP       NLPConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Graph     GraphConfig
	Vector    VectorConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	MaxQueryLength       int
	AllowedOrigins       []string
	Development          bool
}

type NewsConfig struct {
	BaseURL    string
	APIKey     string
	Language   string
	SortBy     string
	PageSize   int
	Page       int
	TimeoutSec int
	MaxRetries int

	// FullText fetches article pages when the source truncates content.
	FullText          bool
	ScrapeTimeoutSec  int
	ScrapeConcurrency int
	ScrapeMaxChars    int
}

// NLPConfig selects a backend per extraction port: "huggingface", "prose"
// (entities only) or "llm" (sentiment and relationship only).
type NLPConfig struct {
	Entities     string
	Sentiment    string
	Relationship string
	Question     string

	HuggingFace HuggingFaceConfig
}

type HuggingFaceConfig struct {
	BaseURL        string
	APIToken       string
	NERModel       string
	SentimentModel string
	QAModel        string
	EmbeddingModel string
	TimeoutSec     int
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  int
	TimeoutSec  int
}

// EmbeddingConfig.Provider is one of "openai", "huggingface" or "hash".
type EmbeddingConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	CacheTTL   int
}

// GraphConfig.Backend is "neo4j" or "memory". SentimentScope is "global"
// (one node per label) or "article" (one node per article and label).
type GraphConfig struct {
	Backend        string
	URI            string
	Username       string
	Password       string
	Database       string
	SentimentScope string
	QueryLimit     int
	TimeoutSec     int
}

// VectorConfig.Backend is "memory" or "milvus".
type VectorConfig struct {
	Backend        string
	Endpoint       string
	APIKey         string
	CollectionName string
}

type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type ChatConfig struct {
	ExitKeyword     string
	MaxHistoryTurns int
	GraphOutputDir  string
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	ArticlesTTL int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration into the given viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/newsgraph")

	v.SetEnvPrefix("NEWSGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunkSize must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunkOverlap must be in [0, chunkSize), got %d", c.Retrieval.ChunkOverlap)
	}
	switch c.Graph.SentimentScope {
	case "global", "article":
	default:
		return fmt.Errorf("graph.sentimentScope must be global or article, got %q", c.Graph.SentimentScope)
	}
	if c.Chat.MaxHistoryTurns < 0 {
		return fmt.Errorf("chat.maxHistoryTurns must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxRequestsPerMinute", 60)
	v.SetDefault("server.maxQueryLength", 2000)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", true)

	v.SetDefault("news.baseURL", "https://newsapi.org/v2/everything")
	v.SetDefault("news.language", "en")
	v.SetDefault("news.sortBy", "relevancy")
	v.SetDefault("news.pageSize", 30)
	v.SetDefault("news.page", 1)
	v.SetDefault("news.timeoutSec", 15)
	v.SetDefault("news.maxRetries", 2)
	v.SetDefault("news.fullText", false)
	v.SetDefault("news.scrapeTimeoutSec", 10)
	v.SetDefault("news.scrapeConcurrency", 4)
	v.SetDefault("news.scrapeMaxChars", 5000)

	v.SetDefault("nlp.entities", "huggingface")
	v.SetDefault("nlp.sentiment", "huggingface")
	v.SetDefault("nlp.relationship", "huggingface")
	v.SetDefault("nlp.question", "What is the relationship described in this text?")
	v.SetDefault("nlp.huggingFace.baseURL", "https://api-inference.huggingface.co/models")
	v.SetDefault("nlp.huggingFace.nerModel", "dbmdz/bert-large-cased-finetuned-conll03-english")
	v.SetDefault("nlp.huggingFace.sentimentModel", "ProsusAI/finbert")
	v.SetDefault("nlp.huggingFace.qaModel", "mrm8488/bert-tiny-finetuned-squadv2")
	v.SetDefault("nlp.huggingFace.embeddingModel", "sentence-transformers/all-mpnet-base-v2")
	v.SetDefault("nlp.huggingFace.timeoutSec", 60)

	v.SetDefault("llm.baseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.maxRetries", 2)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("embedding.provider", "huggingface")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.baseURL", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.cacheTTL", 86400)

	v.SetDefault("graph.backend", "neo4j")
	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "password")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.sentimentScope", "global")
	v.SetDefault("graph.queryLimit", 25)
	v.SetDefault("graph.timeoutSec", 30)

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.endpoint", "localhost:19530")
	v.SetDefault("vector.collectionName", "news_chunks")

	v.SetDefault("retrieval.chunkSize", 1000)
	v.SetDefault("retrieval.chunkOverlap", 200)
	v.SetDefault("retrieval.topK", 8)

	v.SetDefault("chat.exitKeyword", "exit")
	v.SetDefault("chat.maxHistoryTurns", 20)
	v.SetDefault("chat.graphOutputDir", ".")

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/newsgraph.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.articlesTTL", 3600)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
