package rag

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const (
	TopK               = 8
	RelevanceThreshold = 0.25
	FallbackMatches    = 3
	MaxImages          = 5
	MaxTokens          = 1000
	ScopedMaxTokens    = 1500
)

// Deps are the collaborators of an Orchestrator. The project fields are only
// needed for scoped requests.
type Deps struct {
	Embedder types.Embedder
	Index    types.VectorIndex
	Chat     types.ChatModel

	Gateway   types.Gateway
	Extractor types.DocumentExtractor
	History   types.HistoryLoader

	MaxTokens       int
	ScopedMaxTokens int
}

// Orchestrator answers building-regulation questions from retrieved context.
// It keeps no per-request state, so one instance serves concurrent requests.
type Orchestrator struct {
	deps   Deps
	log    *logger.Logger
	tracer trace.Tracer
	stages []stage
}

type stage struct {
	name string
	run  func(ctx context.Context, t *turn) error
}

func New(deps Deps, log *logger.Logger) (*Orchestrator, error) {
	if deps.Embedder == nil || deps.Index == nil || deps.Chat == nil {
		return nil, apierr.Errorf(apierr.MissingConfiguration, "embedder, vector index and chat model are required")
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = MaxTokens
	}
	if deps.ScopedMaxTokens <= 0 {
		deps.ScopedMaxTokens = ScopedMaxTokens
	}

	o := &Orchestrator{
		deps:   deps,
		log:    log.With("component", "rag"),
		tracer: otel.Tracer("eezybuild/rag"),
	}
	o.stages = []stage{
		{"validate_input", o.validateInput},
		{"validate_scope", o.validateScope},
		{"project_context", o.gatherProjectContext},
		{"embed_query", o.embedQuery},
		{"retrieve", o.retrieve},
		{"select_matches", o.selectMatches},
		{"collect_images", o.collectImages},
		{"compose_prompt", o.composePrompt},
		{"generate", o.generate},
	}
	return o, nil
}

// Answer runs the pipeline for one question. Errors carry an apierr.Kind.
func (o *Orchestrator) Answer(ctx context.Context, message string, scope *models.ProjectContext) (*models.ChatAnswer, error) {
	ctx, span := o.tracer.Start(ctx, "rag.answer", trace.WithAttributes(attribute.Bool("scoped", scope != nil)))
	defer span.End()

	t := &turn{message: message, scope: scope}
	for _, s := range o.stages {
		if err := o.runStage(ctx, s, t); err != nil {
			kind := apierr.KindOf(err)
			span.SetStatus(codes.Error, string(kind))
			o.log.Error("chat request failed", "stage", s.name, "kind", kind, "scoped", scope != nil, "error", err)
			return nil, err
		}
		if t.answer != nil {
			break
		}
	}
	if t.answer == nil {
		return nil, apierr.New(apierr.Internal, errors.New("pipeline finished without an answer"))
	}
	return t.answer, nil
}

func (o *Orchestrator) runStage(ctx context.Context, s stage, t *turn) error {
	ctx, span := o.tracer.Start(ctx, "rag."+s.name)
	defer span.End()

	if err := s.run(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apierr.KindOf(err)))
		return err
	}
	return nil
}
