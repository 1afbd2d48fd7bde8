package pinecone

import (
	"encoding/json"
	"fmt"

	"github.com/eezybuild/eezybuild/internal/models"
)

// EncodeMetadata flattens chunk metadata into Pinecone's value types. Images
// are stored as a JSON string since nested objects are not allowed.
func EncodeMetadata(m models.ChunkMetadata) map[string]any {
	out := map[string]any{
		"text":        m.Text,
		"source":      m.Source,
		"url":         m.URL,
		"chunkIndex":  m.ChunkIndex,
		"totalChunks": m.TotalChunks,
	}
	if m.LastUpdated != "" {
		out["lastUpdated"] = m.LastUpdated
	}
	if m.Section != "" {
		out["section"] = m.Section
	}
	if m.SourceURL != "" {
		out["sourceUrl"] = m.SourceURL
	}
	if len(m.Images) > 0 {
		raw, _ := json.Marshal(m.Images)
		out["images"] = string(raw)
	}
	return out
}

// DecodeMetadata reads metadata written by EncodeMetadata and by older
// ingestion runs, which stored images as a list of objects.
func DecodeMetadata(raw map[string]any) (models.ChunkMetadata, error) {
	var m models.ChunkMetadata
	if raw == nil {
		return m, nil
	}

	var err error
	if m.Text, err = stringField(raw, "text"); err != nil {
		return m, err
	}
	if m.Source, err = stringField(raw, "source"); err != nil {
		return m, err
	}
	if m.URL, err = stringField(raw, "url"); err != nil {
		return m, err
	}
	m.LastUpdated, _ = raw["lastUpdated"].(string)
	m.Section, _ = raw["section"].(string)
	m.SourceURL, _ = raw["sourceUrl"].(string)
	if f, ok := raw["chunkIndex"].(float64); ok {
		m.ChunkIndex = int(f)
	}
	if f, ok := raw["totalChunks"].(float64); ok {
		m.TotalChunks = int(f)
	}

	switch v := raw["images"].(type) {
	case nil:
	case string:
		if v != "" {
			if err := json.Unmarshal([]byte(v), &m.Images); err != nil {
				return m, fmt.Errorf("images: %w", err)
			}
		}
	case []any:
		// round-trip through JSON so numeric page values decode the same way
		b, _ := json.Marshal(v)
		if err := json.Unmarshal(b, &m.Images); err != nil {
			return m, fmt.Errorf("images: %w", err)
		}
	default:
		return m, fmt.Errorf("images: unexpected type %T", v)
	}

	return m, nil
}

func stringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("metadata %s: expected string, got %T", key, v)
	}
	return s, nil
}
