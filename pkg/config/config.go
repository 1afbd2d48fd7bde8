package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderPinecone = "pinecone"
	ProviderPgvector = "pgvector"

	// MaxUpsertBatchSize is the most vectors the index accepts in one upsert.
	MaxUpsertBatchSize = 100
)

type Config struct {
	OpenAI      OpenAIConfig      `yaml:"openai"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Chat        ChatConfig        `yaml:"chat"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type OpenAIConfig struct {
	APIKey              string        `yaml:"api_key"`
	BaseURL             string        `yaml:"base_url"`
	ChatModel           string        `yaml:"chat_model"`
	VisionModel         string        `yaml:"vision_model"`
	SummaryModel        string        `yaml:"summary_model"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	Temperature         *float64      `yaml:"temperature"` // nil means unset; 0 is a valid setting
	MaxTokens           int           `yaml:"max_tokens"`
	ScopedMaxTokens     int           `yaml:"scoped_max_tokens"`
	EmbeddingBatchSize  int           `yaml:"embedding_batch_size"`
	EmbeddingBatchDelay time.Duration `yaml:"embedding_batch_delay"`
}

type VectorIndexConfig struct {
	Provider         string        `yaml:"provider"`
	APIKey           string        `yaml:"api_key"`
	Host             string        `yaml:"host"`
	APIVersion       string        `yaml:"api_version"`
	Namespace        string        `yaml:"namespace"`
	TableName        string        `yaml:"table_name"`
	VectorDim        int           `yaml:"vector_dim"`
	UpsertBatchSize  int           `yaml:"upsert_batch_size"`
	UpsertBatchDelay time.Duration `yaml:"upsert_batch_delay"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ChatConfig struct {
	HistoryLimit     int `yaml:"history_limit"`
	MaxDocumentChars int `yaml:"max_document_chars"`
}

type ScraperConfig struct {
	SourceURL         string        `yaml:"source_url"`
	MaxDepth          int           `yaml:"max_depth"`
	MaxPages          int           `yaml:"max_pages"`
	RateLimit         float64       `yaml:"rate_limit"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	IgnorePatterns    []string      `yaml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
	MinPageLength  int `yaml:"min_page_length"`
}

type IngestConfig struct {
	// Interval of the in-server refresh schedule; zero disables it.
	Interval    time.Duration `yaml:"interval"`
	SourceLabel string        `yaml:"source_label"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/eezybuild/config.yaml"),
			"/etc/eezybuild/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.OpenAI.ChatModel == "" {
		config.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if config.OpenAI.VisionModel == "" {
		config.OpenAI.VisionModel = "gpt-4o"
	}
	if config.OpenAI.SummaryModel == "" {
		config.OpenAI.SummaryModel = "gpt-4o-mini"
	}
	if config.OpenAI.EmbeddingModel == "" {
		config.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if config.OpenAI.Temperature == nil {
		temperature := 0.3
		config.OpenAI.Temperature = &temperature
	}
	if config.OpenAI.MaxTokens == 0 {
		config.OpenAI.MaxTokens = 1000
	}
	if config.OpenAI.ScopedMaxTokens == 0 {
		config.OpenAI.ScopedMaxTokens = 1500
	}
	if config.OpenAI.EmbeddingBatchSize == 0 {
		config.OpenAI.EmbeddingBatchSize = 20
	}
	if config.OpenAI.EmbeddingBatchDelay == 0 {
		config.OpenAI.EmbeddingBatchDelay = time.Second
	}

	if config.VectorIndex.Provider == "" {
		config.VectorIndex.Provider = ProviderPinecone
	}
	if config.VectorIndex.APIVersion == "" {
		config.VectorIndex.APIVersion = "2025-10"
	}
	if config.VectorIndex.TableName == "" {
		config.VectorIndex.TableName = "building_regulations"
	}
	if config.VectorIndex.VectorDim == 0 {
		config.VectorIndex.VectorDim = 1536
	}
	if config.VectorIndex.UpsertBatchSize == 0 {
		config.VectorIndex.UpsertBatchSize = 100
	}
	if config.VectorIndex.UpsertBatchDelay == 0 {
		config.VectorIndex.UpsertBatchDelay = 500 * time.Millisecond
	}

	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "project-documents"
	}
	if config.Storage.Region == "" {
		config.Storage.Region = "eu-west-2"
	}

	if config.Chat.HistoryLimit == 0 {
		config.Chat.HistoryLimit = 5
	}
	if config.Chat.MaxDocumentChars == 0 {
		config.Chat.MaxDocumentChars = 8000
	}

	if config.Scraper.SourceURL == "" {
		config.Scraper.SourceURL = "https://www.gov.uk/building-regulations-approval"
	}
	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "EezyBuild-Regulations-Crawler/1.0"
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 50
	}
	if config.Processor.MinPageLength == 0 {
		config.Processor.MinPageLength = 100
	}

	if config.Ingest.SourceLabel == "" {
		config.Ingest.SourceLabel = "UK Building Regulations"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.Mode == "" {
		config.Server.Mode = "release"
	}
	if config.Log.Mode == "" {
		config.Log.Mode = "development"
	}
}

func mergeWithEnv(config *Config) {
	if key := firstEnv("OPENAI_KEY", "OPENAI_API_KEY"); key != "" {
		config.OpenAI.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if provider := os.Getenv("VECTOR_INDEX_PROVIDER"); provider != "" {
		config.VectorIndex.Provider = provider
	}
	if key := os.Getenv("PINECONE_KEY"); key != "" {
		config.VectorIndex.APIKey = key
	}
	if host := os.Getenv("PINECONE_HOST"); host != "" {
		config.VectorIndex.Host = host
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if endpoint := os.Getenv("STORAGE_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	} else if config.Storage.Endpoint == "" {
		if supabaseURL := os.Getenv("SUPABASE_URL"); supabaseURL != "" {
			config.Storage.Endpoint = strings.TrimRight(supabaseURL, "/") + "/storage/v1/s3"
		}
	}
	if id := os.Getenv("STORAGE_ACCESS_KEY_ID"); id != "" {
		config.Storage.AccessKeyID = id
	}
	if secret := firstEnv("STORAGE_SECRET_ACCESS_KEY", "SUPABASE_SERVICE_ROLE_KEY"); secret != "" {
		config.Storage.SecretAccessKey = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		config.Log.Mode = mode
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
