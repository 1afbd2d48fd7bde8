package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Gateway reads project documents and conversations. Every row is checked
// against the requested scope after it is read.
type Gateway struct {
	db  Querier
	log *logger.Logger
}

func New(db Querier, log *logger.Logger) *Gateway {
	return &Gateway{db: db, log: log.With("component", "gateway")}
}

func (g *Gateway) FetchProjectDocuments(ctx context.Context, projectID, userID string) ([]models.ProjectDocument, error) {
	if err := ValidateScope(projectID, userID); err != nil {
		return nil, err
	}

	rows, err := g.db.Query(ctx, `
		SELECT id::text, file_name, file_path, COALESCE(file_type, ''), COALESCE(file_size, 0),
		       user_id::text, project_id::text
		FROM project_documents
		WHERE project_id::text = $1 AND user_id::text = $2
		ORDER BY created_at ASC`,
		projectID, userID)
	if err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to query project documents: %w", err))
	}
	defer rows.Close()

	var docs []models.ProjectDocument
	for rows.Next() {
		var d models.ProjectDocument
		if err := rows.Scan(&d.ID, &d.FileName, &d.FilePath, &d.FileType, &d.FileSize, &d.UserID, &d.ProjectID); err != nil {
			return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to scan project document: %w", err))
		}
		if err := ValidateDocument(d, projectID, userID); err != nil {
			g.log.Error("document outside scope", "document_id", d.ID, "project_id", projectID, "user_id", userID)
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, err)
	}
	return docs, nil
}

func (g *Gateway) FetchRecentConversations(ctx context.Context, projectID, userID string, limit int) ([]models.ConversationRecord, error) {
	if err := ValidateScope(projectID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := g.db.Query(ctx, `
		SELECT id::text, COALESCE(title, ''), created_at, project_id::text, user_id::text
		FROM conversations
		WHERE project_id::text = $1 AND user_id::text = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		projectID, userID, limit)
	if err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to query conversations: %w", err))
	}
	defer rows.Close()

	var convs []models.ConversationRecord
	for rows.Next() {
		var c models.ConversationRecord
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.ProjectID, &c.UserID); err != nil {
			return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to scan conversation: %w", err))
		}
		if err := ValidateConversation(c, projectID, userID); err != nil {
			g.log.Error("conversation outside scope", "conversation_id", c.ID, "project_id", projectID, "user_id", userID)
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, err)
	}
	return convs, nil
}

// FetchMessages returns user and assistant messages oldest first. Callers
// must have validated the conversation's scope.
func (g *Gateway) FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := g.db.Query(ctx, `
		SELECT content, role, created_at
		FROM messages
		WHERE conversation_id::text = $1 AND role IN ('user', 'assistant')
		ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Content, &m.Role, &m.CreatedAt); err != nil {
			return nil, apierr.New(apierr.UpstreamDatabaseFailure, fmt.Errorf("failed to scan message: %w", err))
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.New(apierr.UpstreamDatabaseFailure, err)
	}
	return msgs, nil
}
