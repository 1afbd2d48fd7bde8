package models

import "time"

// IndexedImage is an image reference as stored in chunk metadata.
type IndexedImage struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Page  int    `json:"page,omitempty"`
}

// ChunkMetadata is the metadata stored next to every regulation vector.
type ChunkMetadata struct {
	Text        string         `json:"text"`
	Source      string         `json:"source"`
	URL         string         `json:"url"`
	LastUpdated string         `json:"lastUpdated,omitempty"`
	Section     string         `json:"section,omitempty"`
	SourceURL   string         `json:"sourceUrl,omitempty"`
	ChunkIndex  int            `json:"chunkIndex"`
	TotalChunks int            `json:"totalChunks"`
	Images      []IndexedImage `json:"images,omitempty"`
}

type IndexedVector struct {
	ID       string
	Values   []float32
	Metadata ChunkMetadata
}

type RetrievalMatch struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

// VectorFilter selects vectors whose metadata Field equals one of Values.
type VectorFilter struct {
	Field  string
	Values []string
}

// Page is one crawled page of the regulations website.
type Page struct {
	URL       string
	Title     string
	Markdown  string
	Images    []IndexedImage
	FetchedAt time.Time
}

// ChunkRecord is a chunk of a page, ready to be embedded.
type ChunkRecord struct {
	Text   string
	Source string
	URL    string
	Index  int
	Total  int
	Images []IndexedImage
}

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IngestionRun is a row of building_regs_updates.
type IngestionRun struct {
	UpdateDate      time.Time
	PagesCrawled    int
	ChunksProcessed int
	VectorsCreated  int
	Status          string
	ErrorMessage    string
}

type IngestionResult struct {
	PagesCrawled    int `json:"pagesCrawled"`
	ChunksProcessed int `json:"chunksProcessed"`
	VectorsCreated  int `json:"vectorsCreated"`
}

type IngestResponse struct {
	Success         bool   `json:"success"`
	PagesCrawled    int    `json:"pagesCrawled,omitempty"`
	ChunksProcessed int    `json:"chunksProcessed,omitempty"`
	VectorsCreated  int    `json:"vectorsCreated,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}
