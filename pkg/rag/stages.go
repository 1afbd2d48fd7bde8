package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/gateway"
)

const noInformationResponse = "I apologise, but I couldn't find any relevant information in the UK Building Regulations documents to answer your question. " +
	"This might be because the question is outside the scope of UK Building Regulations, or the specific information hasn't been indexed yet. " +
	"Could you try rephrasing your question or being more specific about which part of the Building Regulations you're asking about?"

// turn is the state of one request as it moves through the stages.
type turn struct {
	message string
	scope   *models.ProjectContext

	documents []models.ProjectDocument
	analyses  []models.DocumentAnalysis
	history   string

	vector      []float32
	matches     []models.RetrievalMatch
	selected    []models.RetrievalMatch
	fallback    bool
	regulations string
	images      []models.Image

	system string
	answer *models.ChatAnswer
}

func (o *Orchestrator) validateInput(_ context.Context, t *turn) error {
	if strings.TrimSpace(t.message) == "" {
		return apierr.Errorf(apierr.InvalidInput, "message is required")
	}
	return nil
}

func (o *Orchestrator) validateScope(_ context.Context, t *turn) error {
	if t.scope == nil {
		return nil
	}
	if err := gateway.ValidateScope(t.scope.ID, t.scope.UserID); err != nil {
		return err
	}
	if o.deps.Gateway == nil || o.deps.Extractor == nil || o.deps.History == nil {
		return apierr.Errorf(apierr.MissingConfiguration, "project scoped chat is not configured")
	}
	return nil
}

func (o *Orchestrator) gatherProjectContext(ctx context.Context, t *turn) error {
	if t.scope == nil {
		return nil
	}
	projectID, userID := t.scope.ID, t.scope.UserID

	docs, err := o.deps.Gateway.FetchProjectDocuments(ctx, projectID, userID)
	if err != nil {
		return apierr.Wrap(apierr.UpstreamDatabaseFailure, fmt.Errorf("fetch project documents: %w", err))
	}
	// re-checked here so no gateway implementation can widen the scope
	for _, d := range docs {
		if err := gateway.ValidateDocument(d, projectID, userID); err != nil {
			return err
		}
	}
	t.documents = docs

	analyses, err := o.deps.Extractor.ExtractAll(ctx, docs, t.message, projectID, userID)
	if err != nil {
		return apierr.Wrap(apierr.ExtractionFailure, err)
	}
	t.analyses = analyses

	history, err := o.deps.History.LoadProjectConversationHistory(ctx, projectID, userID)
	if err != nil {
		return apierr.Wrap(apierr.UpstreamDatabaseFailure, err)
	}
	t.history = history

	o.log.Info("project context gathered", "project_id", projectID, "user_id", userID, "documents", len(docs), "history", history != "")
	return nil
}

func (o *Orchestrator) embedQuery(ctx context.Context, t *turn) error {
	vectors, err := o.deps.Embedder.Embed(ctx, []string{t.message})
	if err != nil {
		return apierr.Wrap(apierr.UpstreamEmbeddingFailure, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return apierr.Errorf(apierr.UpstreamEmbeddingFailure, "expected one query embedding, got %d", len(vectors))
	}
	t.vector = vectors[0]
	return nil
}

func (o *Orchestrator) retrieve(ctx context.Context, t *turn) error {
	matches, err := o.deps.Index.Query(ctx, t.vector, TopK)
	if err != nil {
		return apierr.Wrap(apierr.UpstreamRetrievalFailure, err)
	}
	t.matches = matches
	return nil
}

// selectMatches keeps matches scoring above the threshold. When none do, the
// first few matches are used regardless of score. With nothing usable the
// request ends with the no-information answer.
func (o *Orchestrator) selectMatches(_ context.Context, t *turn) error {
	for _, m := range t.matches {
		if m.Score > RelevanceThreshold && strings.TrimSpace(m.Metadata.Text) != "" {
			t.selected = append(t.selected, m)
		}
	}

	if len(t.selected) == 0 {
		t.fallback = true
		for _, m := range t.matches[:min(FallbackMatches, len(t.matches))] {
			if strings.TrimSpace(m.Metadata.Text) != "" {
				t.selected = append(t.selected, m)
			}
		}
	}

	o.log.Debug("matches selected", "retrieved", len(t.matches), "selected", len(t.selected), "fallback", t.fallback)

	if len(t.selected) == 0 {
		t.answer = o.newAnswer(t, noInformationResponse, nil)
		return nil
	}

	contexts := make([]string, 0, len(t.selected))
	for _, m := range t.selected {
		if t.fallback {
			contexts = append(contexts, fmt.Sprintf("[Score: %.3f] %s", m.Score, m.Metadata.Text))
		} else {
			contexts = append(contexts, m.Metadata.Text)
		}
	}
	t.regulations = strings.Join(contexts, "\n\n---\n\n")
	return nil
}

// collectImages keeps every image entry of the selected matches in order,
// repeats included, up to MaxImages.
func (o *Orchestrator) collectImages(_ context.Context, t *turn) error {
	for _, m := range t.selected {
		for _, img := range m.Metadata.Images {
			if len(t.images) == MaxImages {
				return nil
			}
			if img.URL == "" {
				continue
			}
			t.images = append(t.images, toImage(img, m.Metadata.Source))
		}
	}
	return nil
}

func toImage(img models.IndexedImage, source string) models.Image {
	title := img.Title
	if title == "" {
		title = "Building Regulation Diagram"
		if img.Page > 0 {
			title = fmt.Sprintf("Building Regulation Diagram - Page %d", img.Page)
		}
	}
	if source == "" {
		source = "UK Building Regulations"
	}
	return models.Image{URL: img.URL, Title: title, Source: source}
}

func (o *Orchestrator) composePrompt(_ context.Context, t *turn) error {
	t.system = buildSystemPrompt(t)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, t *turn) error {
	maxTokens := o.deps.MaxTokens
	if t.scope != nil {
		maxTokens = o.deps.ScopedMaxTokens
	}

	text, err := o.deps.Chat.Complete(ctx, t.system, t.message, maxTokens)
	if err != nil {
		return apierr.Wrap(apierr.UpstreamGenerationFailure, err)
	}
	if strings.TrimSpace(text) == "" {
		return apierr.Errorf(apierr.UpstreamGenerationFailure, "empty completion")
	}

	t.answer = o.newAnswer(t, text, t.images)
	return nil
}

// newAnswer sets the project fields only for scoped requests.
func (o *Orchestrator) newAnswer(t *turn, response string, images []models.Image) *models.ChatAnswer {
	if images == nil {
		images = []models.Image{}
	}
	answer := &models.ChatAnswer{Response: response, Images: images}
	if t.scope != nil {
		n := len(t.documents)
		answer.DocumentsAnalyzed = &n
		answer.ConversationsReferenced = "None"
		if t.history != "" {
			answer.ConversationsReferenced = "Available"
		}
		answer.ProjectID = t.scope.ID
	}
	return answer
}
