package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPostgres(db, nil)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, mock
}

func TestPostgres_GetOrCreateUser(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE SET")).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	id, err := p.GetOrCreateUser(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetOrCreateUser_EmptyNameIsNull(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "ada@example.com", nil).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	_, err := p.GetOrCreateUser(context.Background(), "ada@example.com", "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateSession(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO research_sessions").
		WithArgs(sqlmock.AnyArg(), "user-1", "q", `{"objective":"o"}`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("sess-1"))

	id, err := p.CreateSession(context.Background(), "user-1", "q", map[string]any{"objective": "o"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateSession_BuildsSetClause(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE research_sessions SET status = $1, completed_at = $2, final_outcome = $3, token_usage = $4 WHERE session_id = $5")).
		WithArgs("completed", p.now().UTC(), `{"ok":true}`, 42, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := p.UpdateSession(context.Background(), "sess-1", SessionUpdate{
		Status:       Ptr(SessionCompleted),
		FinalOutcome: map[string]any{"ok": true},
		TokenUsage:   Ptr(42),
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateSession_ActiveHasNoCompletedAt(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE research_sessions SET status = $1 WHERE session_id = $2")).
		WithArgs("active", "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := p.UpdateSession(context.Background(), "sess-1", SessionUpdate{Status: Ptr(SessionActive)})
	require.NoError(t, err)
	assert.False(t, ok, "no row affected")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateSession_NothingToUpdate(t *testing.T) {
	p, mock := newMock(t)

	ok, err := p.UpdateSession(context.Background(), "sess-1", SessionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession(t *testing.T) {
	p, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := created.Add(5 * time.Second)

	mock.ExpectQuery("FROM research_sessions").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "user_id", "initial_query", "research_plan", "final_outcome",
			"token_usage", "status", "created_at", "completed_at",
		}).AddRow("sess-1", "user-1", "q", []byte(`{"objective":"o"}`), nil, 10, "completed", created, completed))

	s, err := p.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, SessionCompleted, s.Status)
	assert.Equal(t, "o", s.ResearchPlan["objective"])
	assert.Nil(t, s.FinalOutcome)
	assert.Equal(t, 5*time.Second, s.Duration())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession_NotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("FROM research_sessions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := p.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_CreateAndUpdateExecution(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO subagent_executions").
		WithArgs(sqlmock.AnyArg(), "sess-1", "metadata", "discover", nil).
		WillReturnRows(sqlmock.NewRows([]string{"execution_id"}).AddRow("exec-1"))
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE subagent_executions SET status = $1, completed_at = $2, execution_time_ms = $3, error_message = $4 WHERE execution_id = $5")).
		WithArgs("failed", sqlmock.AnyArg(), 12, "boom", "exec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	id, err := p.CreateExecution(ctx, "sess-1", AgentMetadata, "discover", nil)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)

	ok, err := p.UpdateExecution(ctx, id, ExecutionUpdate{
		Status:          Ptr(ExecutionFailed),
		ExecutionTimeMS: Ptr(12),
		ErrorMessage:    "boom",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListExecutions(t *testing.T) {
	p, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subagent_executions")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"execution_id", "session_id", "agent_type", "task_description", "tool_calls",
			"results", "status", "execution_time_ms", "error_message", "created_at", "completed_at",
		}).
			AddRow("e1", "sess-1", "metadata", "t1", nil, []byte(`{"n":1}`), "completed", 20, nil, created, created).
			AddRow("e2", "sess-1", "data", "t2", nil, nil, "running", nil, nil, created, nil))

	execs, err := p.ListExecutions(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, AgentMetadata, execs[0].AgentType)
	assert.Equal(t, 20, *execs[0].ExecutionTimeMS)
	assert.Equal(t, float64(1), execs[0].Results["n"])
	assert.Nil(t, execs[1].ExecutionTimeMS)
	assert.Nil(t, execs[1].CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListMemory_FilteredByType(t *testing.T) {
	p, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`memory_type = \$2\s+AND \(expires_at IS NULL OR expires_at > NOW\(\)\)\s+ORDER BY created_at DESC`).
		WithArgs("sess-1", "research_plan").
		WillReturnRows(sqlmock.NewRows([]string{
			"memory_id", "session_id", "memory_type", "content", "artifact_path", "created_at", "expires_at",
		}).AddRow("m1", "sess-1", "research_plan", []byte(`{"objective":"o"}`), nil, created, nil))

	mems, err := p.ListMemory(context.Background(), "sess-1", Ptr(MemoryResearchPlan))
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, MemoryResearchPlan, mems[0].Type)
	assert.Equal(t, "o", mems[0].Content["objective"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StoreMemory(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO session_memory").
		WithArgs(sqlmock.AnyArg(), "sess-1", "research_plan", `{"a":"b"}`, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"memory_id"}).AddRow("m1"))

	id, err := p.StoreMemory(context.Background(), Memory{
		SessionID: "sess-1",
		Type:      MemoryResearchPlan,
		Content:   map[string]any{"a": "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Analytics(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("FROM research_sessions").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "failed", "avg_tokens", "avg_duration"}).
			AddRow(4, 3, 1, 250.5, nil))
	mock.ExpectQuery("GROUP BY agent_type").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"agent_type", "total", "ok", "avg_ms"}).
			AddRow("data", 5, 4, 812.0).
			AddRow("metadata", 3, 3, nil))

	a, err := p.Analytics(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, a.SessionStats.TotalSessions)
	assert.Equal(t, 3, a.SessionStats.CompletedSessions)
	assert.InDelta(t, 250.5, *a.SessionStats.AvgTokenUsage, 0.001)
	assert.Nil(t, a.SessionStats.AvgDurationSeconds)
	require.Len(t, a.AgentStats, 2)
	assert.Equal(t, AgentData, a.AgentStats[0].AgentType)
	assert.InDelta(t, 812.0, *a.AgentStats[0].AvgExecutionTimeMS, 0.001)
	assert.Nil(t, a.AgentStats[1].AvgExecutionTimeMS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, p.Migrate(context.Background()))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	err := p.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
