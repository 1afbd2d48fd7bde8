package rag

import (
	"context"
	"sync"

	"github.com/eezybuild/eezybuild/internal/models"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	matches []models.RetrievalMatch
	err     error
	topK    int
}

func (f *fakeIndex) Upsert(context.Context, []models.IndexedVector) error { return nil }
func (f *fakeIndex) Delete(context.Context, models.VectorFilter) error    { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int) ([]models.RetrievalMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topK = topK
	return f.matches, f.err
}

type fakeChat struct {
	mu        sync.Mutex
	respond   func(system, user string) string
	err       error
	calls     int
	system    string
	maxTokens int
}

func (f *fakeChat) Complete(_ context.Context, system, user string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.maxTokens = maxTokens
	if f.err != nil {
		return "", f.err
	}
	if f.respond != nil {
		return f.respond(system, user), nil
	}
	return "Answer.", nil
}

type fakeGateway struct {
	docs     []models.ProjectDocument
	convs    []models.ConversationRecord
	messages map[string][]models.Message
	err      error
}

func (f *fakeGateway) FetchProjectDocuments(context.Context, string, string) ([]models.ProjectDocument, error) {
	return f.docs, f.err
}

func (f *fakeGateway) FetchRecentConversations(context.Context, string, string, int) ([]models.ConversationRecord, error) {
	return f.convs, nil
}

func (f *fakeGateway) FetchMessages(_ context.Context, id string) ([]models.Message, error) {
	return f.messages[id], nil
}

type fakeBlobs struct {
	objects   map[string][]byte
	downloads int
}

func (f *fakeBlobs) Download(_ context.Context, path string) ([]byte, error) {
	f.downloads++
	return f.objects[path], nil
}

type fakeVision struct{ analysis string }

func (f *fakeVision) AnalyzeImage(_ context.Context, _ []byte, fileName, _, _, _, _ string) string {
	return "[IMAGE ANALYSIS: " + fileName + "]\n" + f.analysis
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, _ string, title string) string {
	return "Earlier discussion about " + title + "."
}
