package pinecone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type recorder struct {
	mu       sync.Mutex
	paths    []string
	bodies   []map[string]any
	headers  []http.Header
	response string
	status   int
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(req.Body).Decode(&body)

	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.bodies = append(r.bodies, body)
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()

	if r.status != 0 {
		w.WriteHeader(r.status)
	}
	fmt.Fprint(w, r.response)
}

func newTestClient(t *testing.T, rec *recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "pc-key", Host: srv.URL, Namespace: "regs"}, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Host: "regs.svc.pinecone.io"}, logger.Nop())
	assert.Equal(t, apierr.MissingConfiguration, apierr.KindOf(err))

	c, err := New(Config{APIKey: "k", Host: "regs.svc.pinecone.io/"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "https://regs.svc.pinecone.io", c.base)
}

func TestUpsertBatches(t *testing.T) {
	rec := &recorder{response: `{"upsertedCount":100}`}
	c := newTestClient(t, rec)

	vectors := make([]models.IndexedVector, 250)
	for i := range vectors {
		vectors[i] = models.IndexedVector{
			ID:       fmt.Sprintf("building-reg-1-%d", i),
			Values:   []float32{0.1, 0.2},
			Metadata: models.ChunkMetadata{Text: "text", Source: "Approved Document B", URL: "https://example.gov.uk"},
		}
	}

	require.NoError(t, c.Upsert(context.Background(), vectors))

	require.Len(t, rec.paths, 3)
	var sizes []int
	for i, body := range rec.bodies {
		assert.Equal(t, "/vectors/upsert", rec.paths[i])
		assert.Equal(t, "regs", body["namespace"])
		sizes = append(sizes, len(body["vectors"].([]any)))
	}
	assert.Equal(t, []int{100, 100, 50}, sizes)

	h := rec.headers[0]
	assert.Equal(t, "pc-key", h.Get("Api-Key"))
	assert.Equal(t, "2025-10", h.Get("X-Pinecone-Api-Version"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestUpsertFailure(t *testing.T) {
	rec := &recorder{status: http.StatusBadRequest, response: `{"message":"metadata too large"}`}
	c := newTestClient(t, rec)

	err := c.Upsert(context.Background(), []models.IndexedVector{{ID: "a", Values: []float32{1}}})

	require.Error(t, err)
	assert.Equal(t, apierr.UpstreamRetrievalFailure, apierr.KindOf(err))
	assert.Contains(t, err.Error(), "400")
}

func TestTruncatedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "200")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message":"overlo`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "pc-key", Host: srv.URL, Namespace: "regs"}, logger.Nop())
	require.NoError(t, err)

	err = c.Upsert(context.Background(), []models.IndexedVector{{ID: "a", Values: []float32{1}}})
	require.Error(t, err)
	assert.Equal(t, apierr.UpstreamRetrievalFailure, apierr.KindOf(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "reading /vectors/upsert response")
}

func TestQuery(t *testing.T) {
	rec := &recorder{response: `{"matches":[
		{"id":"a","score":0.82,"metadata":{"text":"Part B fire safety","source":"Approved Document B","url":"https://example.gov.uk/b","chunkIndex":2,"totalChunks":5,
		 "images":[{"url":"https://example.gov.uk/d1.png","title":"Diagram 1","page":3}]}},
		{"id":"b","score":0.31,"metadata":{"text":"Part L","source":"Approved Document L","url":"https://example.gov.uk/l",
		 "images":"[{\"url\":\"https://example.gov.uk/d2.png\"}]"}}
	]}`}
	c := newTestClient(t, rec)

	matches, err := c.Query(context.Background(), []float32{0.1, 0.2}, 8)
	require.NoError(t, err)

	assert.Equal(t, "/query", rec.paths[0])
	assert.Equal(t, float64(8), rec.bodies[0]["topK"])
	assert.Equal(t, true, rec.bodies[0]["includeMetadata"])

	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, 0.82, matches[0].Score)
	assert.Equal(t, "Part B fire safety", matches[0].Metadata.Text)
	assert.Equal(t, 2, matches[0].Metadata.ChunkIndex)
	assert.Equal(t, []models.IndexedImage{{URL: "https://example.gov.uk/d1.png", Title: "Diagram 1", Page: 3}}, matches[0].Metadata.Images)
	assert.Equal(t, []models.IndexedImage{{URL: "https://example.gov.uk/d2.png"}}, matches[1].Metadata.Images)
}

func TestQueryEmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{"no matches", `{"matches":[]}`, false},
		{"missing matches", `{}`, false},
		{"missing score", `{"matches":[{"id":"a","metadata":{"text":"x"}}]}`, true},
		{"missing id", `{"matches":[{"score":0.5}]}`, true},
		{"text not a string", `{"matches":[{"id":"a","score":0.5,"metadata":{"text":42}}]}`, true},
		{"not json", `<html>gateway timeout</html>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &recorder{response: tt.response})

			matches, err := c.Query(context.Background(), []float32{1}, 8)
			if tt.wantErr {
				assert.Equal(t, apierr.UpstreamRetrievalFailure, apierr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestDelete(t *testing.T) {
	rec := &recorder{response: `{}`}
	c := newTestClient(t, rec)

	err := c.Delete(context.Background(), models.VectorFilter{Field: "sourceUrl", Values: []string{"https://www.gov.uk/building-regulations-approval"}})
	require.NoError(t, err)

	assert.Equal(t, "/vectors/delete", rec.paths[0])
	filter := rec.bodies[0]["filter"].(map[string]any)
	assert.Equal(t, map[string]any{"$in": []any{"https://www.gov.uk/building-regulations-approval"}}, filter["sourceUrl"])

	assert.Error(t, c.Delete(context.Background(), models.VectorFilter{Field: "sourceUrl"}))
}

func TestMetadataRoundTrip(t *testing.T) {
	in := models.ChunkMetadata{
		Text: "Stairs in dwellings", Source: "Approved Document K", URL: "https://example.gov.uk/k",
		LastUpdated: "2026-01-01T00:00:00Z", Section: "Part K", SourceURL: "https://example.gov.uk",
		ChunkIndex: 1, TotalChunks: 4,
		Images: []models.IndexedImage{{URL: "https://example.gov.uk/k1.png", Title: "Diagram 1.1"}},
	}

	raw, err := json.Marshal(EncodeMetadata(in))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	out, err := DecodeMetadata(decoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
