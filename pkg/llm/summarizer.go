package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const summarySystemPrompt = `You summarise past conversations between a user and a UK Building Regulations assistant for reuse as project context.
Write a structured executive summary, not a verbatim copy, under these headings:
Topics discussed:
Decisions made:
Compliance issues identified:
Recommendations given:
Unresolved follow-ups:
Cite Approved Document Parts by letter and keep measurements in metric units. Write "None" under a heading with nothing to report.
Use British English.`

type Summarizer struct {
	llm       Generator
	model     string
	maxTokens int
	log       *logger.Logger
}

func NewSummarizer(gen Generator, model string, log *logger.Logger) *Summarizer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Summarizer{
		llm:       gen,
		model:     model,
		maxTokens: 500,
		log:       log.With("component", "summarizer"),
	}
}

// Summarize returns "" when the model fails or returns nothing.
func (s *Summarizer) Summarize(ctx context.Context, transcript, title string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return ""
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Conversation title: %s\n\n%s", title, transcript)),
	}

	resp, err := s.llm.GenerateContent(ctx, content,
		llms.WithModel(s.model),
		llms.WithMaxTokens(s.maxTokens),
		llms.WithTemperature(0.3),
	)
	if err == nil {
		var summary string
		if summary, err = firstChoice(resp); err == nil {
			return summary
		}
	}

	s.log.Warn("conversation summary failed", "title", title, "error", apierr.New(apierr.UpstreamSummarizationFailure, err))
	return ""
}
