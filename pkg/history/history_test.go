package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type fakeGateway struct {
	convs    []models.ConversationRecord
	convErr  error
	messages map[string][]models.Message
	msgErr   map[string]error
	limit    int
}

func (f *fakeGateway) FetchProjectDocuments(context.Context, string, string) ([]models.ProjectDocument, error) {
	return nil, nil
}

func (f *fakeGateway) FetchRecentConversations(_ context.Context, _, _ string, limit int) ([]models.ConversationRecord, error) {
	f.limit = limit
	return f.convs, f.convErr
}

func (f *fakeGateway) FetchMessages(_ context.Context, id string) ([]models.Message, error) {
	if err := f.msgErr[id]; err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

type fakeSummarizer struct {
	transcripts []string
	fail        map[string]bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript, title string) string {
	f.transcripts = append(f.transcripts, transcript)
	if f.fail[title] {
		return ""
	}
	return "Summary of " + title
}

var day = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func conv(id, title string) models.ConversationRecord {
	return models.ConversationRecord{ID: id, Title: title, CreatedAt: day, ProjectID: "p1", UserID: "u1"}
}

func TestLoadProjectConversationHistory(t *testing.T) {
	gw := &fakeGateway{
		convs: []models.ConversationRecord{conv("c1", "Fire doors"), conv("c2", "Empty"), conv("c3", "Drainage"), conv("c4", "Broken"), conv("c5", "Unsummarised")},
		messages: map[string][]models.Message{
			"c1": {{Role: "user", Content: "Do I need FD30 doors?"}, {Role: "assistant", Content: "Yes, see Part B."}},
			"c3": {{Role: "user", Content: "Soakaway distance?"}},
			"c5": {{Role: "user", Content: "hello"}},
		},
		msgErr: map[string]error{"c4": errors.New("timeout")},
	}
	summarizer := &fakeSummarizer{fail: map[string]bool{"Unsummarised": true}}
	l := New(gw, summarizer, 0, logger.Nop())

	out, err := l.LoadProjectConversationHistory(context.Background(), "p1", "u1")
	require.NoError(t, err)

	assert.Equal(t, 5, gw.limit)
	assert.Equal(t, "--- CONVERSATION: \"Fire doors\" (2026-05-04) ---\nSummary of Fire doors\n\n--- CONVERSATION: \"Drainage\" (2026-05-04) ---\nSummary of Drainage", out)
	assert.Equal(t, "USER: Do I need FD30 doors?\nASSISTANT: Yes, see Part B.\n", summarizer.transcripts[0])
	assert.NotContains(t, out, "Empty")
	assert.NotContains(t, out, "Broken")
}

func TestLoadHistoryScopeViolation(t *testing.T) {
	foreign := conv("c9", "Other")
	foreign.UserID = "u2"
	l := New(&fakeGateway{convs: []models.ConversationRecord{conv("c1", "a"), foreign}}, &fakeSummarizer{}, 5, logger.Nop())

	_, err := l.LoadProjectConversationHistory(context.Background(), "p1", "u1")
	assert.Equal(t, apierr.SecurityViolation, apierr.KindOf(err))

	_, err = l.LoadProjectConversationHistory(context.Background(), "p1", "")
	assert.Equal(t, apierr.SecurityViolation, apierr.KindOf(err))
}

func TestLoadHistoryDegrades(t *testing.T) {
	l := New(&fakeGateway{convErr: errors.New("connection reset")}, &fakeSummarizer{}, 5, logger.Nop())

	out, err := l.LoadProjectConversationHistory(context.Background(), "p1", "u1")
	assert.NoError(t, err)
	assert.Empty(t, out)

	l = New(&fakeGateway{}, &fakeSummarizer{}, 5, logger.Nop())
	out, err = l.LoadProjectConversationHistory(context.Background(), "p1", "u1")
	assert.NoError(t, err)
	assert.True(t, strings.TrimSpace(out) == "")
}
