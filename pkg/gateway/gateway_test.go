package gateway_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/gateway"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

const schema = `
CREATE TABLE project_documents (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_type TEXT,
	file_size BIGINT,
	user_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE conversations (
	id TEXT PRIMARY KEY,
	title TEXT,
	project_id TEXT,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE messages (
	id SERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	content TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("EEZYBUILD_INTEGRATION") != "1" {
		t.Skip("set EEZYBUILD_INTEGRATION=1 to run Postgres integration tests")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("eezybuild"),
		postgres.WithUsername("eezybuild"),
		postgres.WithPassword("eezybuild"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)
	return pool
}

func TestFetchProjectDocuments(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO project_documents (id, file_name, file_path, file_type, file_size, user_id, project_id) VALUES
		('d1', 'plan.png', 'u1/p1/plan.png', 'image/png', 2048, 'u1', 'p1'),
		('d2', 'notes.txt', 'u1/p1/notes.txt', 'text/plain', NULL, 'u1', 'p1'),
		('d3', 'other.pdf', 'u2/p2/other.pdf', 'application/pdf', 10, 'u2', 'p2')`)
	require.NoError(t, err)

	g := gateway.New(pool, logger.Nop())

	docs, err := g.FetchProjectDocuments(ctx, "p1", "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "p1", d.ProjectID)
		assert.Equal(t, "u1", d.UserID)
	}

	docs, err = g.FetchProjectDocuments(ctx, "p1", "u2")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFetchProjectDocumentsRejectsMisfiledPath(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO project_documents (id, file_name, file_path, user_id, project_id)
		VALUES ('d1', 'plan.png', 'u2/p2/plan.png', 'u1', 'p1')`)
	require.NoError(t, err)

	_, err = gateway.New(pool, logger.Nop()).FetchProjectDocuments(ctx, "p1", "u1")
	assert.Equal(t, apierr.SecurityViolation, apierr.KindOf(err))
}

func TestConversationsAndMessages(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		_, err := pool.Exec(ctx, `INSERT INTO conversations (id, title, project_id, user_id, created_at) VALUES ($1, $2, 'p1', 'u1', $3)`,
			id, "Conversation "+id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	_, err := pool.Exec(ctx, `INSERT INTO conversations (id, title, project_id, user_id, created_at) VALUES ('x1', 'Other', 'p2', 'u2', $1)`, base)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO messages (conversation_id, content, role, created_at) VALUES
		('c6', 'second', 'assistant', $2),
		('c6', 'first', 'user', $1),
		('c6', 'internal', 'system', $1)`, base, base.Add(time.Minute))
	require.NoError(t, err)

	g := gateway.New(pool, logger.Nop())

	convs, err := g.FetchRecentConversations(ctx, "p1", "u1", 5)
	require.NoError(t, err)
	require.Len(t, convs, 5)
	assert.Equal(t, "c6", convs[0].ID)
	assert.Equal(t, "c2", convs[4].ID)

	msgs, err := g.FetchMessages(ctx, "c6")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)

	_, err = g.FetchRecentConversations(ctx, "p1", "", 5)
	assert.Equal(t, apierr.SecurityViolation, apierr.KindOf(err))
}
