package orchestrator

import "fmt"

// ProgressStatus is the state of a node within a run.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEvent is emitted while a run executes.
type ProgressEvent struct {
	SessionID string         `json:"session_id"`
	Node      Node           `json:"node"`
	Status    ProgressStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
}

const progressBuffer = 64

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of
// size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{ch: make(chan ProgressEvent, progressBuffer)}
}

// Emit sends a progress event without blocking. If the channel is full the
// event is dropped. Emit on a nil reporter is a no-op.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	if pr == nil {
		return
	}
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressStarted:
		return fmt.Sprintf("  ● %s...", event.Node)
	case ProgressCompleted:
		if event.Message != "" {
			return fmt.Sprintf("  ✓ %s complete: %s", event.Node, event.Message)
		}
		return fmt.Sprintf("  ✓ %s complete", event.Node)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Node, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Node)
	}
}
