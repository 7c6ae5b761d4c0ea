package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/config"
	"github.com/dusk-indust/dataflow/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	logging.OrNop(logger).Info("database connection pool created",
		zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return NewPostgres(db, logger), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logging.OrNop(logger), now: time.Now}
}

// Migrate applies the embedded schema. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) GetOrCreateUser(ctx context.Context, email, name string) (string, error) {
	const q = `
		INSERT INTO users (user_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, users.name),
			updated_at = NOW()
		RETURNING user_id`

	var id string
	if err := p.db.QueryRowContext(ctx, q, uuid.NewString(), email, nullString(name)).Scan(&id); err != nil {
		return "", fmt.Errorf("store: get or create user: %w", err)
	}
	return id, nil
}

func (p *Postgres) CreateSession(ctx context.Context, userID, query string, plan map[string]any) (string, error) {
	const q = `
		INSERT INTO research_sessions (session_id, user_id, initial_query, research_plan)
		VALUES ($1, $2, $3, $4)
		RETURNING session_id`

	planJSON, err := jsonArg(plan)
	if err != nil {
		return "", err
	}
	var id string
	if err := p.db.QueryRowContext(ctx, q, uuid.NewString(), userID, query, planJSON).Scan(&id); err != nil {
		return "", fmt.Errorf("store: create session: %w", err)
	}
	return id, nil
}

func (p *Postgres) UpdateSession(ctx context.Context, id string, u SessionUpdate) (bool, error) {
	var b setBuilder
	if u.Status != nil {
		b.add("status", string(*u.Status))
		if u.Status.Terminal() {
			b.add("completed_at", p.now().UTC())
		}
	}
	if len(u.ResearchPlan) > 0 {
		if err := b.addJSON("research_plan", u.ResearchPlan); err != nil {
			return false, err
		}
	}
	if len(u.FinalOutcome) > 0 {
		if err := b.addJSON("final_outcome", u.FinalOutcome); err != nil {
			return false, err
		}
	}
	if u.TokenUsage != nil {
		b.add("token_usage", *u.TokenUsage)
	}
	return p.update(ctx, "research_sessions", "session_id", id, &b)
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*Session, error) {
	const q = `
		SELECT session_id, user_id, initial_query, research_plan, final_outcome,
		       token_usage, status, created_at, completed_at
		FROM research_sessions
		WHERE session_id = $1`

	var (
		s           Session
		userID      sql.NullString
		plan, final []byte
		status      string
		completedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &userID, &s.InitialQuery, &plan, &final,
		&s.TokenUsage, &status, &s.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	s.UserID = userID.String
	s.Status = SessionStatus(status)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	if s.ResearchPlan, err = decodeJSON(plan); err != nil {
		return nil, err
	}
	if s.FinalOutcome, err = decodeJSON(final); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) CreateExecution(ctx context.Context, sessionID string, agentType AgentType, task string, toolCalls map[string]any) (string, error) {
	const q = `
		INSERT INTO subagent_executions (execution_id, session_id, agent_type, task_description, tool_calls)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING execution_id`

	callsJSON, err := jsonArg(toolCalls)
	if err != nil {
		return "", err
	}
	var id string
	if err := p.db.QueryRowContext(ctx, q, uuid.NewString(), sessionID, string(agentType), task, callsJSON).Scan(&id); err != nil {
		return "", fmt.Errorf("store: create execution: %w", err)
	}
	return id, nil
}

func (p *Postgres) UpdateExecution(ctx context.Context, id string, u ExecutionUpdate) (bool, error) {
	var b setBuilder
	if u.Status != nil {
		b.add("status", string(*u.Status))
		if u.Status.Terminal() {
			b.add("completed_at", p.now().UTC())
		}
	}
	if len(u.Results) > 0 {
		if err := b.addJSON("results", u.Results); err != nil {
			return false, err
		}
	}
	if u.ExecutionTimeMS != nil {
		b.add("execution_time_ms", *u.ExecutionTimeMS)
	}
	if u.ErrorMessage != "" {
		b.add("error_message", u.ErrorMessage)
	}
	return p.update(ctx, "subagent_executions", "execution_id", id, &b)
}

func (p *Postgres) ListExecutions(ctx context.Context, sessionID string) ([]Execution, error) {
	const q = `
		SELECT execution_id, session_id, agent_type, task_description, tool_calls,
		       results, status, execution_time_ms, error_message, created_at, completed_at
		FROM subagent_executions
		WHERE session_id = $1
		ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e                 Execution
			agentType, status string
			calls, results    []byte
			execMS            sql.NullInt64
			errMsg            sql.NullString
			completedAt       sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &agentType, &e.TaskDescription, &calls,
			&results, &status, &execMS, &errMsg, &e.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: scan execution: %w", err)
		}
		e.AgentType = AgentType(agentType)
		e.Status = ExecutionStatus(status)
		e.ErrorMessage = errMsg.String
		if execMS.Valid {
			ms := int(execMS.Int64)
			e.ExecutionTimeMS = &ms
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		if e.ToolCalls, err = decodeJSON(calls); err != nil {
			return nil, err
		}
		if e.Results, err = decodeJSON(results); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	return out, nil
}

func (p *Postgres) StoreMemory(ctx context.Context, m Memory) (string, error) {
	const q = `
		INSERT INTO session_memory (memory_id, session_id, memory_type, content, artifact_path, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING memory_id`

	contentJSON, err := jsonArg(m.Content)
	if err != nil {
		return "", err
	}
	var expires any
	if m.ExpiresAt != nil {
		expires = *m.ExpiresAt
	}
	var id string
	err = p.db.QueryRowContext(ctx, q, uuid.NewString(), m.SessionID, string(m.Type),
		contentJSON, nullString(m.ArtifactPath), expires).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: store memory: %w", err)
	}
	return id, nil
}

func (p *Postgres) ListMemory(ctx context.Context, sessionID string, memType *MemoryType) ([]Memory, error) {
	q := `
		SELECT memory_id, session_id, memory_type, content, artifact_path, created_at, expires_at
		FROM session_memory
		WHERE session_id = $1`
	args := []any{sessionID}
	if memType != nil {
		q += ` AND memory_type = $2`
		args = append(args, string(*memType))
	}
	q += `
		AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list memory: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var (
			m         Memory
			typ       string
			content   []byte
			path      sql.NullString
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &typ, &content, &path, &m.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		m.Type = MemoryType(typ)
		m.ArtifactPath = path.String
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Time
		}
		if m.Content, err = decodeJSON(content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list memory: %w", err)
	}
	return out, nil
}

func (p *Postgres) Analytics(ctx context.Context, days int) (*Analytics, error) {
	const sessionsQ = `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			AVG(token_usage),
			AVG(EXTRACT(EPOCH FROM (completed_at - created_at)))
		FROM research_sessions
		WHERE created_at > NOW() - make_interval(days => $1)`

	const agentsQ = `
		SELECT
			agent_type,
			COUNT(*),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			AVG(execution_time_ms)
		FROM subagent_executions
		WHERE created_at > NOW() - make_interval(days => $1)
		GROUP BY agent_type`

	var (
		a                Analytics
		avgTokens, avgDu sql.NullFloat64
	)
	err := p.db.QueryRowContext(ctx, sessionsQ, days).Scan(
		&a.SessionStats.TotalSessions,
		&a.SessionStats.CompletedSessions,
		&a.SessionStats.FailedSessions,
		&avgTokens, &avgDu,
	)
	if err != nil {
		return nil, fmt.Errorf("store: session analytics: %w", err)
	}
	a.SessionStats.AvgTokenUsage = nullFloat(avgTokens)
	a.SessionStats.AvgDurationSeconds = nullFloat(avgDu)

	rows, err := p.db.QueryContext(ctx, agentsQ, days)
	if err != nil {
		return nil, fmt.Errorf("store: agent analytics: %w", err)
	}
	defer rows.Close()

	a.AgentStats = []AgentStats{}
	for rows.Next() {
		var (
			s       AgentStats
			typ     string
			avgTime sql.NullFloat64
		)
		if err := rows.Scan(&typ, &s.TotalExecutions, &s.SuccessfulExecutions, &avgTime); err != nil {
			return nil, fmt.Errorf("store: scan agent analytics: %w", err)
		}
		s.AgentType = AgentType(typ)
		s.AvgExecutionTimeMS = nullFloat(avgTime)
		a.AgentStats = append(a.AgentStats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: agent analytics: %w", err)
	}
	return &a, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) update(ctx context.Context, table, key, id string, b *setBuilder) (bool, error) {
	if len(b.cols) == 0 {
		return false, nil
	}
	b.args = append(b.args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", table, strings.Join(b.cols, ", "), key, len(b.args))

	res, err := p.db.ExecContext(ctx, q, b.args...)
	if err != nil {
		return false, fmt.Errorf("store: update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: update %s: %w", table, err)
	}
	return n == 1, nil
}

// setBuilder assembles an UPDATE SET clause with numbered placeholders.
type setBuilder struct {
	cols []string
	args []any
}

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

func (b *setBuilder) addJSON(col string, v map[string]any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", col, err)
	}
	b.add(col, string(data))
	return nil
}

func jsonArg(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode json: %w", err)
	}
	return string(data), nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("store: decode json: %w", err)
	}
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
