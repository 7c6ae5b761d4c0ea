// Package llmtest provides scripted completers for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/dusk-indust/dataflow/internal/llm"
)

// Call is one recorded Complete invocation.
type Call struct {
	System    string
	User      string
	MaxTokens int
}

// Completer answers Complete calls from a Respond func, or from a queue of
// Replies when Respond is nil. An exhausted queue repeats the last reply.
type Completer struct {
	mu      sync.Mutex
	Respond func(system, user string) (string, error)
	Replies []string
	Err     error
	calls   []Call
	next    int
}

var _ llm.Completer = (*Completer)(nil)

// Replies returns a Completer that answers with replies in order.
func Replies(replies ...string) *Completer {
	return &Completer{Replies: replies}
}

// Failing returns a Completer whose every call fails with err.
func Failing(err error) *Completer {
	return &Completer{Err: err}
}

func (c *Completer) Complete(_ context.Context, system, user string, opts ...llm.Option) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{System: system, User: user, MaxTokens: llm.ResolveMaxTokens(opts)})
	if c.Err != nil {
		return "", c.Err
	}
	if c.Respond != nil {
		out, err := c.Respond(system, user)
		return strings.TrimSpace(out), err
	}
	if len(c.Replies) == 0 {
		return "", nil
	}
	i := c.next
	if i >= len(c.Replies) {
		i = len(c.Replies) - 1
	} else {
		c.next++
	}
	return strings.TrimSpace(c.Replies[i]), nil
}

// Calls returns a copy of the recorded calls.
func (c *Completer) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Ping fails with Err.
func (c *Completer) Ping(context.Context) error {
	return c.Err
}
