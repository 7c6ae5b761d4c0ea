package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/dataflow/internal/agent"
	"github.com/dusk-indust/dataflow/internal/export"
	"github.com/dusk-indust/dataflow/internal/orchestrator"
	"github.com/dusk-indust/dataflow/internal/research"
)

type researchFlags struct {
	Mode         string
	Trace        string
	Email        string
	ResearchMode string
	Quiet        bool
}

func newResearchCmd(a *app) *cobra.Command {
	var flags researchFlags
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Run one research query and print the result",
		Long: `Run a research query locally.

--mode supervisor runs the supervisor workflow and prints its outcome;
--trace mermaid or --trace json prints the routing trace instead.
--mode plan develops a research plan, executes it and prints the
research outcome, the same path the multi_agent_research MCP tool takes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch flags.Mode {
			case "supervisor":
				return a.runSupervisor(cmd, args[0], flags)
			case "plan":
				return a.runPlan(cmd, args[0], flags)
			default:
				return fmt.Errorf("unknown mode %q (want supervisor or plan)", flags.Mode)
			}
		},
	}
	cmd.Flags().StringVar(&flags.Mode, "mode", "supervisor", "execution path: supervisor or plan")
	cmd.Flags().StringVar(&flags.Trace, "trace", "", "print the supervisor trace as mermaid or json")
	cmd.Flags().StringVar(&flags.Email, "email", agent.DefaultUserEmail, "user the entitlement agent evaluates")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "do not print agent progress to stderr")
	cmd.Flags().StringVar(&flags.ResearchMode, "research-mode", string(research.ModeFull), "research scope for --mode plan: metadata, data, analysis or full")
	return cmd
}

func (a *app) runSupervisor(cmd *cobra.Command, query string, flags researchFlags) error {
	ctx := cmd.Context()
	rt, err := a.buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	opts := orchestrator.OptionsFromConfig(a.cfg.Supervisor)
	if !flags.Quiet {
		opts.Progress = orchestrator.NewProgressReporter()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range opts.Progress.Subscribe() {
				fmt.Fprintln(cmd.ErrOrStderr(), orchestrator.FormatProgress(ev))
			}
		}()
		defer func() {
			opts.Progress.Close()
			<-done
		}()
	}

	sup := orchestrator.NewSupervisor(rt.agents, rt.llm, opts, a.logger)
	out, err := sup.Run(ctx, orchestrator.Request{
		TaskDescription: query,
		Query:           query,
		UserEmail:       flags.Email,
	})
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}

	w := cmd.OutOrStdout()
	switch flags.Trace {
	case "":
		return printJSON(w, out)
	case "mermaid":
		_, err := io.WriteString(w, export.GenerateMermaid(out.Trace))
		return err
	case "json":
		return export.WriteJSON(w, out, time.Now())
	default:
		return fmt.Errorf("unknown trace format %q (want mermaid or json)", flags.Trace)
	}
}

func (a *app) runPlan(cmd *cobra.Command, query string, flags researchFlags) error {
	if flags.Trace != "" {
		return fmt.Errorf("--trace requires --mode supervisor")
	}
	mode, err := research.ParseMode(flags.ResearchMode)
	if err != nil {
		return err
	}
	svc, closeFn, err := a.researchService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := svc.Research(cmd.Context(), research.Request{
		Query:     query,
		UserEmail: flags.Email,
		Mode:      mode,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
