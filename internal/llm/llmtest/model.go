package llmtest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Model is a scripted eino chat model. Wrap it with llm.NewWithModel to get
// a client whose usage accounting is exercised.
type Model struct {
	mu sync.Mutex
	// Reply is returned by Generate.
	Reply string
	// Tokens is reported as total usage on every Generate.
	Tokens int
	// Chunks are streamed by Stream.
	Chunks []string
	Err    error
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*Model)(nil)

func (m *Model) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if m.Err != nil {
		return nil, m.Err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.Reply,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{TotalTokens: m.Tokens},
		},
	}, nil
}

func (m *Model) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if m.Err != nil {
		return nil, m.Err
	}
	msgs := make([]*schema.Message, 0, len(m.Chunks))
	for i, c := range m.Chunks {
		msg := &schema.Message{Role: schema.Assistant, Content: c}
		if i == len(m.Chunks)-1 {
			msg.ResponseMeta = &schema.ResponseMeta{FinishReason: "stop"}
		}
		msgs = append(msgs, msg)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// Inputs returns the message lists received so far.
func (m *Model) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.inputs...)
}
