package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type Config struct {
	APIKey     string
	Host       string
	APIVersion string
	Namespace  string
	Timeout    time.Duration
	// Upserts are sent in batches of at most BatchSize vectors, BatchDelay apart.
	BatchSize  int
	BatchDelay time.Duration
}

// Client talks to the data plane of one Pinecone index.
type Client struct {
	log  *logger.Logger
	cfg  Config
	base string
	http *http.Client
}

func New(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Host) == "" {
		return nil, apierr.Errorf(apierr.MissingConfiguration, "pinecone api key and host are required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	return &Client{
		log:  log.With("client", "pinecone"),
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type queryRequest struct {
	Namespace       string    `json:"namespace,omitempty"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    *float64       `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

type deleteRequest struct {
	Namespace string         `json:"namespace,omitempty"`
	Filter    map[string]any `json:"filter"`
}

// Upsert writes vectors in paced batches. The first failing batch aborts the call.
func (c *Client) Upsert(ctx context.Context, vectors []models.IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}

	limit := rate.Inf
	if c.cfg.BatchDelay > 0 {
		limit = rate.Every(c.cfg.BatchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for start := 0; start < len(vectors); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(vectors))
		if err := limiter.Wait(ctx); err != nil {
			return apierr.New(apierr.UpstreamRetrievalFailure, err)
		}

		req := upsertRequest{Namespace: c.cfg.Namespace, Vectors: make([]vector, 0, end-start)}
		for _, v := range vectors[start:end] {
			req.Vectors = append(req.Vectors, vector{ID: v.ID, Values: v.Values, Metadata: EncodeMetadata(v.Metadata)})
		}

		resp, err := doJSON[upsertResponse](ctx, c, http.MethodPost, "/vectors/upsert", req)
		if err != nil {
			return apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("upsert batch %d-%d: %w", start, end, err))
		}
		c.log.Debug("upserted batch", "from", start, "to", end, "upserted", resp.UpsertedCount)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, values []float32, topK int) ([]models.RetrievalMatch, error) {
	if len(values) == 0 {
		return nil, apierr.Errorf(apierr.UpstreamRetrievalFailure, "query vector required")
	}
	if topK <= 0 {
		topK = 8
	}

	resp, err := doJSON[queryResponse](ctx, c, http.MethodPost, "/query", queryRequest{
		Namespace:       c.cfg.Namespace,
		Vector:          values,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, apierr.New(apierr.UpstreamRetrievalFailure, err)
	}

	matches := make([]models.RetrievalMatch, 0, len(resp.Matches))
	for i, m := range resp.Matches {
		if m.ID == "" || m.Score == nil {
			return nil, apierr.Errorf(apierr.UpstreamRetrievalFailure, "malformed match %d in query response", i)
		}
		meta, err := DecodeMetadata(m.Metadata)
		if err != nil {
			return nil, apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("match %s: %w", m.ID, err))
		}
		matches = append(matches, models.RetrievalMatch{ID: m.ID, Score: *m.Score, Metadata: meta})
	}
	return matches, nil
}

// Delete removes every vector whose metadata matches filter.
func (c *Client) Delete(ctx context.Context, filter models.VectorFilter) error {
	if filter.Field == "" || len(filter.Values) == 0 {
		return apierr.Errorf(apierr.UpstreamRetrievalFailure, "delete filter must name a field and at least one value")
	}
	_, err := doJSON[struct{}](ctx, c, http.MethodPost, "/vectors/delete", deleteRequest{
		Namespace: c.cfg.Namespace,
		Filter: map[string]any{
			filter.Field: map[string]any{"$in": filter.Values},
		},
	})
	if err != nil {
		return apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("delete: %w", err))
	}
	return nil
}

func doJSON[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("pinecone http %d: reading %s response: %w", resp.StatusCode, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone http %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone decode %s: %w", path, err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
