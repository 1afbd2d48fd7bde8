package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type fakeCrawler struct {
	pages []models.Page
	err   error
	block chan struct{}
}

func (f *fakeCrawler) Crawl(ctx context.Context, _ string) ([]models.Page, error) {
	if f.block != nil {
		<-f.block
	}
	return f.pages, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

// memoryIndex keeps vectors in insertion order so replacement can be observed.
type memoryIndex struct {
	mu        sync.Mutex
	vectors   []models.IndexedVector
	calls     []string
	deleteErr error
	upsertErr error
}

func (m *memoryIndex) Upsert(_ context.Context, vectors []models.IndexedVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "upsert")
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.vectors = append(m.vectors, vectors...)
	return nil
}

func (m *memoryIndex) Query(context.Context, []float32, int) ([]models.RetrievalMatch, error) {
	return nil, nil
}

func (m *memoryIndex) Delete(_ context.Context, filter models.VectorFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.vectors[:0]
	for _, v := range m.vectors {
		if filter.Field == SourceField && contains(filter.Values, v.Metadata.SourceURL) {
			continue
		}
		kept = append(kept, v)
	}
	m.vectors = kept
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

type fakeRunLog struct {
	runs []models.IngestionRun
	err  error
}

func (f *fakeRunLog) Record(_ context.Context, run models.IngestionRun) error {
	f.runs = append(f.runs, run)
	return f.err
}

const sourceURL = "https://www.gov.uk/building-regulations-approval"

func regulationPages() []models.Page {
	partL := "# Part L - Conservation of fuel and power\n\n" +
		strings.Repeat("New dwellings must meet the target primary energy rate and target emission rate. ", 20)
	partB := "# Part B - Fire safety\n\n" +
		strings.Repeat("Loft conversions require a protected stairway to a final exit. ", 5)
	return []models.Page{
		{URL: sourceURL, Title: "Building regulations approval", Markdown: partL,
			Images: []models.IndexedImage{{URL: "https://assets.gov.uk/diagram.png", Page: 1}}},
		{URL: sourceURL + "/fire", Title: "", Markdown: partB},
		{URL: sourceURL + "/short", Title: "Short", Markdown: "Too short to index."},
	}
}

func newJob(t *testing.T, crawler *fakeCrawler, embedder *fakeEmbedder, index *memoryIndex, runs *fakeRunLog, cfg Config) *Job {
	t.Helper()
	var runLog types.RunLog
	if runs != nil {
		runLog = runs
	}
	job, err := New(crawler, embedder, index, runLog, cfg, logger.Nop())
	require.NoError(t, err)
	job.now = func() time.Time { return time.UnixMilli(1735689600000) }
	return job
}

func TestRefreshRegulationsIndex(t *testing.T) {
	index := &memoryIndex{}
	runs := &fakeRunLog{}
	var stages []string
	job := newJob(t, &fakeCrawler{pages: regulationPages()}, &fakeEmbedder{}, index, runs, Config{
		OnProgress: func(p Progress) { stages = append(stages, p.Stage) },
	})

	result, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
	require.NoError(t, err)

	assert.Equal(t, 3, result.PagesCrawled)
	assert.Greater(t, result.ChunksProcessed, 1)
	assert.Equal(t, result.ChunksProcessed, result.VectorsCreated)
	assert.Equal(t, []string{"delete", "upsert"}, index.calls)
	assert.Equal(t, []string{StageCrawl, StageProcess, StageEmbed, StageDelete, StageUpsert}, stages)

	require.Len(t, index.vectors, result.VectorsCreated)
	first := index.vectors[0]
	assert.Equal(t, "building-reg-1735689600000-0", first.ID)
	assert.Equal(t, "Part L", first.Metadata.Section)
	assert.Equal(t, "Building regulations approval", first.Metadata.Source)
	assert.Equal(t, sourceURL, first.Metadata.SourceURL)
	assert.Equal(t, "2025-01-01T00:00:00Z", first.Metadata.LastUpdated)
	assert.Equal(t, 0, first.Metadata.ChunkIndex)
	assert.Len(t, first.Metadata.Images, 1)

	last := index.vectors[len(index.vectors)-1]
	assert.Equal(t, "UK Building Regulations", last.Metadata.Source)
	assert.Equal(t, "Part B", last.Metadata.Section)
	for _, v := range index.vectors {
		assert.NotEqual(t, sourceURL+"/short", v.Metadata.URL)
	}

	require.Len(t, runs.runs, 1)
	assert.Equal(t, models.RunCompleted, runs.runs[0].Status)
	assert.Equal(t, result.VectorsCreated, runs.runs[0].VectorsCreated)
	assert.Empty(t, runs.runs[0].ErrorMessage)
}

func TestRefreshReplacesPreviousVectors(t *testing.T) {
	index := &memoryIndex{}
	other := models.IndexedVector{ID: "other", Metadata: models.ChunkMetadata{SourceURL: "https://example.org"}}
	index.vectors = []models.IndexedVector{other}
	job := newJob(t, &fakeCrawler{pages: regulationPages()}, &fakeEmbedder{}, index, nil, Config{})

	first, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
	require.NoError(t, err)
	_, err = job.RefreshRegulationsIndex(context.Background(), sourceURL)
	require.NoError(t, err)

	assert.Len(t, index.vectors, first.VectorsCreated+1)
	assert.Equal(t, "other", index.vectors[0].ID)
}

func TestRefreshToleratesDeleteFailure(t *testing.T) {
	index := &memoryIndex{deleteErr: errors.New("namespace not found")}
	runs := &fakeRunLog{}
	job := newJob(t, &fakeCrawler{pages: regulationPages()}, &fakeEmbedder{}, index, runs, Config{})

	result, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"delete", "upsert"}, index.calls)
	assert.Equal(t, result.VectorsCreated, len(index.vectors))
	assert.Equal(t, models.RunCompleted, runs.runs[0].Status)
}

func TestRefreshFailures(t *testing.T) {
	upstream := errors.New("429 rate limited")

	tests := []struct {
		name      string
		crawler   *fakeCrawler
		embedder  *fakeEmbedder
		index     *memoryIndex
		wantCalls []string
		wantPages int
	}{
		{
			name:     "crawl failure",
			crawler:  &fakeCrawler{err: upstream},
			embedder: &fakeEmbedder{},
			index:    &memoryIndex{},
		},
		{
			name:      "no content",
			crawler:   &fakeCrawler{pages: []models.Page{{URL: sourceURL, Markdown: "tiny"}}},
			embedder:  &fakeEmbedder{},
			index:     &memoryIndex{},
			wantPages: 1,
		},
		{
			name:      "embedding failure",
			crawler:   &fakeCrawler{pages: regulationPages()},
			embedder:  &fakeEmbedder{err: upstream},
			index:     &memoryIndex{},
			wantPages: 3,
		},
		{
			name:      "upsert failure",
			crawler:   &fakeCrawler{pages: regulationPages()},
			embedder:  &fakeEmbedder{},
			index:     &memoryIndex{upsertErr: upstream},
			wantCalls: []string{"delete", "upsert"},
			wantPages: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRunLog{}
			job := newJob(t, tt.crawler, tt.embedder, tt.index, runs, Config{})

			result, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
			require.Error(t, err)

			assert.Equal(t, tt.wantCalls, tt.index.calls)
			assert.Equal(t, tt.wantPages, result.PagesCrawled)
			assert.Zero(t, result.VectorsCreated)

			require.Len(t, runs.runs, 1)
			assert.Equal(t, models.RunFailed, runs.runs[0].Status)
			assert.Equal(t, err.Error(), runs.runs[0].ErrorMessage)
			assert.False(t, runs.runs[0].UpdateDate.IsZero())
		})
	}
}

func TestRunLogFailureDoesNotMaskResult(t *testing.T) {
	runs := &fakeRunLog{err: errors.New("relation building_regs_updates does not exist")}
	job := newJob(t, &fakeCrawler{pages: regulationPages()}, &fakeEmbedder{}, &memoryIndex{}, runs, Config{})

	_, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
	assert.NoError(t, err)

	job.crawler = &fakeCrawler{err: errors.New("site down")}
	_, err = job.RefreshRegulationsIndex(context.Background(), sourceURL)
	assert.ErrorContains(t, err, "site down")
}

func TestSingleRunAtATime(t *testing.T) {
	crawler := &fakeCrawler{pages: regulationPages(), block: make(chan struct{})}
	job := newJob(t, crawler, &fakeEmbedder{}, &memoryIndex{}, nil, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
		done <- err
	}()

	require.Eventually(t, func() bool { return job.running.Load() }, time.Second, time.Millisecond)
	_, err := job.RefreshRegulationsIndex(context.Background(), sourceURL)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(crawler.block)
	assert.NoError(t, <-done)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &fakeEmbedder{}, &memoryIndex{}, nil, Config{}, logger.Nop())
	assert.Equal(t, apierr.MissingConfiguration, apierr.KindOf(err))
}
