package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a concurrency-safe in-memory Store. Values handed in and out
// are deep copies, so callers may mutate them freely.
type MemStore struct {
	mu         sync.RWMutex
	users      map[string]string // email -> user id
	sessions   map[string]*Session
	executions map[string]*Execution
	execOrder  []string
	memory     []*Memory
	now        func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:      make(map[string]string),
		sessions:   make(map[string]*Session),
		executions: make(map[string]*Execution),
		now:        time.Now,
	}
}

func (s *MemStore) GetOrCreateUser(_ context.Context, email, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.users[email]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.users[email] = id
	return id, nil
}

func (s *MemStore) CreateSession(_ context.Context, userID, query string, plan map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = &Session{
		ID:           id,
		UserID:       userID,
		InitialQuery: query,
		ResearchPlan: copyMap(plan),
		Status:       SessionActive,
		CreatedAt:    s.now().UTC(),
	}
	return id, nil
}

func (s *MemStore) UpdateSession(_ context.Context, id string, u SessionUpdate) (bool, error) {
	if u.Status == nil && len(u.ResearchPlan) == 0 && len(u.FinalOutcome) == 0 && u.TokenUsage == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if u.Status != nil {
		sess.Status = *u.Status
		if u.Status.Terminal() {
			t := s.now().UTC()
			sess.CompletedAt = &t
		}
	}
	if len(u.ResearchPlan) > 0 {
		sess.ResearchPlan = copyMap(u.ResearchPlan)
	}
	if len(u.FinalOutcome) > 0 {
		sess.FinalOutcome = copyMap(u.FinalOutcome)
	}
	if u.TokenUsage != nil {
		sess.TokenUsage = *u.TokenUsage
	}
	return true, nil
}

func (s *MemStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	cp := *sess
	cp.ResearchPlan = copyMap(sess.ResearchPlan)
	cp.FinalOutcome = copyMap(sess.FinalOutcome)
	cp.CompletedAt = copyTime(sess.CompletedAt)
	return &cp, nil
}

func (s *MemStore) CreateExecution(_ context.Context, sessionID string, agentType AgentType, task string, toolCalls map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.executions[id] = &Execution{
		ID:              id,
		SessionID:       sessionID,
		AgentType:       agentType,
		TaskDescription: task,
		ToolCalls:       copyMap(toolCalls),
		Status:          ExecutionRunning,
		CreatedAt:       s.now().UTC(),
	}
	s.execOrder = append(s.execOrder, id)
	return id, nil
}

func (s *MemStore) UpdateExecution(_ context.Context, id string, u ExecutionUpdate) (bool, error) {
	if u.Status == nil && len(u.Results) == 0 && u.ExecutionTimeMS == nil && u.ErrorMessage == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return false, nil
	}
	if u.Status != nil {
		e.Status = *u.Status
		if u.Status.Terminal() {
			t := s.now().UTC()
			e.CompletedAt = &t
		}
	}
	if len(u.Results) > 0 {
		e.Results = copyMap(u.Results)
	}
	if u.ExecutionTimeMS != nil {
		ms := *u.ExecutionTimeMS
		e.ExecutionTimeMS = &ms
	}
	if u.ErrorMessage != "" {
		e.ErrorMessage = u.ErrorMessage
	}
	return true, nil
}

func (s *MemStore) ListExecutions(_ context.Context, sessionID string) ([]Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Execution
	for _, id := range s.execOrder {
		e := s.executions[id]
		if e.SessionID != sessionID {
			continue
		}
		cp := *e
		cp.ToolCalls = copyMap(e.ToolCalls)
		cp.Results = copyMap(e.Results)
		cp.CompletedAt = copyTime(e.CompletedAt)
		if e.ExecutionTimeMS != nil {
			ms := *e.ExecutionTimeMS
			cp.ExecutionTimeMS = &ms
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemStore) StoreMemory(_ context.Context, m Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return "", fmt.Errorf("store: session %s: %w", m.SessionID, ErrNotFound)
	}
	cp := m
	cp.ID = uuid.NewString()
	cp.Content = copyMap(m.Content)
	cp.ExpiresAt = copyTime(m.ExpiresAt)
	cp.CreatedAt = s.now().UTC()
	s.memory = append(s.memory, &cp)
	return cp.ID, nil
}

func (s *MemStore) ListMemory(_ context.Context, sessionID string, memType *MemoryType) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []Memory
	for i := len(s.memory) - 1; i >= 0; i-- {
		m := s.memory[i]
		if m.SessionID != sessionID {
			continue
		}
		if memType != nil && m.Type != *memType {
			continue
		}
		if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			continue
		}
		cp := *m
		cp.Content = copyMap(m.Content)
		cp.ExpiresAt = copyTime(m.ExpiresAt)
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemStore) Analytics(_ context.Context, days int) (*Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	a := &Analytics{AgentStats: []AgentStats{}}

	var tokens, durations float64
	var durationCount int
	for _, sess := range s.sessions {
		if !sess.CreatedAt.After(since) {
			continue
		}
		a.SessionStats.TotalSessions++
		tokens += float64(sess.TokenUsage)
		switch sess.Status {
		case SessionCompleted:
			a.SessionStats.CompletedSessions++
		case SessionFailed:
			a.SessionStats.FailedSessions++
		}
		if sess.CompletedAt != nil {
			durations += sess.Duration().Seconds()
			durationCount++
		}
	}
	if n := a.SessionStats.TotalSessions; n > 0 {
		a.SessionStats.AvgTokenUsage = Ptr(tokens / float64(n))
	}
	if durationCount > 0 {
		a.SessionStats.AvgDurationSeconds = Ptr(durations / float64(durationCount))
	}

	type acc struct {
		stats       AgentStats
		timeSum     float64
		timeSamples int
	}
	byType := map[AgentType]*acc{}
	for _, e := range s.executions {
		if !e.CreatedAt.After(since) {
			continue
		}
		x, ok := byType[e.AgentType]
		if !ok {
			x = &acc{stats: AgentStats{AgentType: e.AgentType}}
			byType[e.AgentType] = x
		}
		x.stats.TotalExecutions++
		if e.Status == ExecutionCompleted {
			x.stats.SuccessfulExecutions++
		}
		if e.ExecutionTimeMS != nil {
			x.timeSum += float64(*e.ExecutionTimeMS)
			x.timeSamples++
		}
	}
	for _, x := range byType {
		if x.timeSamples > 0 {
			x.stats.AvgExecutionTimeMS = Ptr(x.timeSum / float64(x.timeSamples))
		}
		a.AgentStats = append(a.AgentStats, x.stats)
	}
	sort.Slice(a.AgentStats, func(i, j int) bool {
		return a.AgentStats[i].AgentType < a.AgentStats[j].AgentType
	})
	return a, nil
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Close() error { return nil }

// copyMap deep copies a JSON-shaped map by round-tripping it through
// encoding/json. Values that do not encode are shallow copied.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err == nil {
		var out map[string]any
		if json.Unmarshal(data, &out) == nil {
			return out
		}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
