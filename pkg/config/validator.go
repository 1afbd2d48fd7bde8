package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/eezybuild/eezybuild/pkg/apierr"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.OpenAI.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.OpenAI.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "openai.base_url",
				Message: "invalid OpenAI base URL",
			})
		}
	}

	if t := c.OpenAI.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "openai.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.OpenAI.MaxTokens < 1 || c.OpenAI.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "openai.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.OpenAI.ScopedMaxTokens < c.OpenAI.MaxTokens {
		errors = append(errors, ValidationError{
			Field:   "openai.scoped_max_tokens",
			Message: "scoped_max_tokens must not be lower than max_tokens",
		})
	}

	if c.OpenAI.EmbeddingBatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "openai.embedding_batch_size",
			Message: "embedding_batch_size must be positive",
		})
	}

	switch c.VectorIndex.Provider {
	case ProviderPinecone, ProviderPgvector:
	default:
		errors = append(errors, ValidationError{
			Field:   "vector_index.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.VectorIndex.Provider),
		})
	}

	if c.VectorIndex.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "vector_index.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.VectorIndex.UpsertBatchSize < 1 || c.VectorIndex.UpsertBatchSize > MaxUpsertBatchSize {
		errors = append(errors, ValidationError{
			Field:   "vector_index.upsert_batch_size",
			Message: fmt.Sprintf("upsert_batch_size must be between 1 and %d", MaxUpsertBatchSize),
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if _, err := url.ParseRequestURI(c.Scraper.SourceURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "scraper.source_url",
			Message: "invalid source URL",
		})
	}

	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.MaxPages < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_pages",
			Message: "max_pages must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Ingest.Interval < 0 {
		errors = append(errors, ValidationError{
			Field:   "ingest.interval",
			Message: "interval must not be negative",
		})
	}

	return errors
}

// RequireChatSecrets reports the secrets the chat pipeline cannot run without.
// The error names the missing keys, never their values.
func (c *Config) RequireChatSecrets() error {
	missing := c.missingIndexSecrets()
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
		missing = append(missing, "storage credentials")
	}
	return missingError(missing)
}

// RequireIngestSecrets reports the secrets the ingestion job cannot run without.
func (c *Config) RequireIngestSecrets() error {
	return missingError(c.missingIndexSecrets())
}

func (c *Config) missingIndexSecrets() []string {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.api_key")
	}
	switch c.VectorIndex.Provider {
	case ProviderPgvector:
		if c.Database.URL == "" {
			missing = append(missing, "database.url")
		}
	default:
		if c.VectorIndex.APIKey == "" {
			missing = append(missing, "vector_index.api_key")
		}
		if c.VectorIndex.Host == "" {
			missing = append(missing, "vector_index.host")
		}
	}
	return missing
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return apierr.Errorf(apierr.MissingConfiguration, "missing required configuration: %s", strings.Join(dedupe(missing), ", "))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
