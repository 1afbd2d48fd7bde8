package llm_test

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    [][]llms.MessageContent
	options  []llms.CallOptions
	response string
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var co llms.CallOptions
	for _, o := range opts {
		o(&co)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.options = append(f.options, co)

	if f.err != nil {
		return nil, f.err
	}
	if f.response == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

type fakeEmbeddingModel struct {
	mu      sync.Mutex
	batches []int
	failOn  int // 1-based call number that fails, 0 never
	short   bool
}

func (f *fakeEmbeddingModel) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, len(texts))
	if f.failOn == len(f.batches) {
		return nil, errUpstream
	}

	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 0.5, 0.25}
	}
	return out, nil
}
