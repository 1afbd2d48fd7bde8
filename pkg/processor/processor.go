package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/eezybuild/eezybuild/internal/models"
)

const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultMinChunkLength = 50
	DefaultMinPageLength  = 100
)

var sectionPattern = regexp.MustCompile(`(?i)(?:Part|Section|Regulation)\s+([A-Z]|\d+)`)

type ProcessorConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
	// Pages with markdown of this many characters or fewer are skipped.
	MinPageLength int
	DefaultSource string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = DefaultChunkOverlap
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = DefaultMinChunkLength
	}
	if config.MinPageLength == 0 {
		config.MinPageLength = DefaultMinPageLength
	}
	if config.DefaultSource == "" {
		config.DefaultSource = "UK Building Regulations"
	}

	return Processor{
		config: config,
	}
}

// Process chunks every substantive page, keeping page and chunk order.
func (p *Processor) Process(pages []models.Page) []models.ChunkRecord {
	var records []models.ChunkRecord

	for _, page := range pages {
		if utf8.RuneCountInString(page.Markdown) <= p.config.MinPageLength {
			continue
		}

		source := strings.TrimSpace(page.Title)
		if source == "" {
			source = p.config.DefaultSource
		}

		chunks := chunkText(page.Markdown, p.config.ChunkSize, p.config.ChunkOverlap, p.config.MinChunkLength)
		for i, chunk := range chunks {
			records = append(records, models.ChunkRecord{
				Text:   chunk,
				Source: source,
				URL:    page.URL,
				Index:  i,
				Total:  len(chunks),
				Images: page.Images,
			})
		}
	}

	return records
}

// Chunk splits text into overlapping windows of at most maxSize characters,
// preferring to cut after a sentence or paragraph break in the second half
// of the window. Chunks shorter than 50 characters are dropped.
func Chunk(text string, maxSize, overlap int) []string {
	return chunkText(text, maxSize, overlap, DefaultMinChunkLength)
}

func chunkText(text string, maxSize, overlap, minLen int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + maxSize
		if end < len(runes) {
			bp := lastBreak(runes, start, end)
			if bp >= 0 && 2*(bp-start) > maxSize {
				end = bp + 1
			}
		} else {
			end = len(runes)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(chunk) >= minLen {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// lastBreak returns the later of the last '.' and the last "\n\n" starting
// at or before end, or -1.
func lastBreak(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if runes[i] == '.' {
			return i
		}
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// ExtractSection returns the first regulation reference in text, such as
// "Part L" or "Regulation 7", or "".
func ExtractSection(text string) string {
	return sectionPattern.FindString(text)
}
