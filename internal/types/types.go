package types

import (
	"context"

	"github.com/eezybuild/eezybuild/internal/models"
)

// Core interfaces

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, vectors []models.IndexedVector) error
	Query(ctx context.Context, vector []float32, topK int) ([]models.RetrievalMatch, error)
	Delete(ctx context.Context, filter models.VectorFilter) error
}

// ChatModel produces one completion for a system prompt and a user message.
type ChatModel interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Gateway is the read-only, (project, user) scoped view of the product tables.
type Gateway interface {
	FetchProjectDocuments(ctx context.Context, projectID, userID string) ([]models.ProjectDocument, error)
	FetchRecentConversations(ctx context.Context, projectID, userID string, limit int) ([]models.ConversationRecord, error)
	FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type BlobStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// VisionAnalyzer never fails; errors degrade to a placeholder naming the file.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, fileName, mimeType, userMessage, projectID, userID string) string
}

// Summarizer returns "" when no summary could be produced.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, title string) string
}

type DocumentExtractor interface {
	ExtractAll(ctx context.Context, docs []models.ProjectDocument, userMessage, projectID, userID string) ([]models.DocumentAnalysis, error)
}

type HistoryLoader interface {
	LoadProjectConversationHistory(ctx context.Context, projectID, userID string) (string, error)
}

type Crawler interface {
	Crawl(ctx context.Context, sourceURL string) ([]models.Page, error)
}

type RunLog interface {
	Record(ctx context.Context, run models.IngestionRun) error
}
