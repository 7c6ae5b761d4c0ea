package orchestrator

import "github.com/dusk-indust/dataflow/internal/config"

// Default limits.
const (
	DefaultMaxErrors = 3
	DefaultMaxSteps  = 25
)

// Options bounds a supervisor run.
type Options struct {
	// MaxErrors failed agent runs end the workflow as failed.
	MaxErrors int
	// MaxSteps caps the number of node executions per run.
	MaxSteps int
	// Progress receives node events. It may be nil.
	Progress *ProgressReporter
}

// OptionsFromConfig maps the supervisor config section onto Options.
func OptionsFromConfig(cfg config.SupervisorConfig) Options {
	return Options{MaxErrors: cfg.MaxErrors, MaxSteps: cfg.MaxSteps}
}

func (o Options) withDefaults() Options {
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	return o
}
