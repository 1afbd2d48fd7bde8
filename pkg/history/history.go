package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/gateway"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const DefaultLimit = 5

// Loader builds a summary block of a project's recent conversations.
type Loader struct {
	gateway    types.Gateway
	summarizer types.Summarizer
	limit      int
	log        *logger.Logger
}

func New(gw types.Gateway, summarizer types.Summarizer, limit int, log *logger.Logger) *Loader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Loader{
		gateway:    gw,
		summarizer: summarizer,
		limit:      limit,
		log:        log.With("component", "history"),
	}
}

// LoadProjectConversationHistory returns "" when there is no usable history.
// Only scope violations are returned as errors; everything else degrades.
func (l *Loader) LoadProjectConversationHistory(ctx context.Context, projectID, userID string) (string, error) {
	if err := gateway.ValidateScope(projectID, userID); err != nil {
		return "", err
	}

	convs, err := l.gateway.FetchRecentConversations(ctx, projectID, userID, l.limit)
	if apierr.Is(err, apierr.SecurityViolation) {
		return "", err
	}
	if err != nil {
		l.log.Warn("conversation history unavailable", "project_id", projectID, "error", err)
		return "", nil
	}

	var entries []string
	for _, conv := range convs {
		if err := gateway.ValidateConversation(conv, projectID, userID); err != nil {
			return "", err
		}

		msgs, err := l.gateway.FetchMessages(ctx, conv.ID)
		if err != nil {
			l.log.Warn("conversation messages unavailable", "conversation_id", conv.ID, "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		var transcript strings.Builder
		for _, m := range msgs {
			fmt.Fprintf(&transcript, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
		}

		summary := l.summarizer.Summarize(ctx, transcript.String(), conv.Title)
		if summary == "" {
			continue
		}

		entries = append(entries, fmt.Sprintf("--- CONVERSATION: %q (%s) ---\n%s", conv.Title, conv.CreatedAt.Format("2006-01-02"), summary))
	}

	return strings.Join(entries, "\n\n"), nil
}
