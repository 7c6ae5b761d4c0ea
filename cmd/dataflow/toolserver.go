package main

import (
	"fmt"
	"net"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/toolmcp"
	"github.com/dusk-indust/dataflow/internal/toolserver"
)

func newToolServerCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:       "toolserver denodo|demo",
		Short:     "Run the Denodo or Demo tool server",
		Long:      `Run one of the tool servers the data agent calls. By default the server listens on the port of its configured endpoint (tools.denodoEndpoint or tools.demoEndpoint).`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"denodo", "demo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				srv      *toolmcp.Server
				endpoint string
			)
			switch args[0] {
			case "denodo":
				srv = toolserver.NewDenodoServer(a.cfg.Denodo, a.logger)
				endpoint = a.cfg.Tools.DenodoEndpoint
			case "demo":
				chat, err := a.newLLM(ctx)
				if err != nil {
					return err
				}
				srv = toolserver.NewDemoServer(chat, a.cfg.LLM.Deployment, a.logger)
				endpoint = a.cfg.Tools.DemoEndpoint
			}

			if addr == "" {
				var err error
				if addr, err = listenAddr(endpoint); err != nil {
					return err
				}
			}
			a.logger.Info("tool server starting", zap.String("server", args[0]), zap.String("addr", addr))
			return toolmcp.ListenAndServe(ctx, addr, srv.Handler(), a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: port of the configured endpoint)")
	return cmd
}

// listenAddr turns an endpoint URL into a listen address on all interfaces.
func listenAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort("0.0.0.0", port), nil
}
