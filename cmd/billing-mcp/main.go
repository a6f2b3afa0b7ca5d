// Command billing-mcp exposes the billing REST API as MCP tools.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"billing-mcp/internal/billing"
	"billing-mcp/internal/config"
	"billing-mcp/internal/logging"
	"billing-mcp/internal/server"
	"billing-mcp/internal/tools"
)

var version = "1.0.0"

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a subcommand needs, built once from the loaded config.
type app struct {
	cfg        config.Config
	log        *logrus.Logger
	dispatcher *tools.Dispatcher
}

func setup(cmd *cobra.Command, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	client := billing.New(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, log)
	d := tools.NewDispatcher(client,
		tools.WithStrictErrors(cfg.StrictErrors),
		tools.WithLogger(log),
	)
	return &app{cfg: cfg, log: log, dispatcher: d}, nil
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	serveStdio := func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd, errOut)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.NewMCP(a.dispatcher, version).ServeStdio(ctx, in, out, a.log)
	}

	root := &cobra.Command{
		Use:           "billing-mcp",
		Short:         "MCP server for the billing API",
		Long:          "billing-mcp exposes the billing REST API as MCP tools. Without a subcommand it serves MCP on stdio.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveStdio,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "stdio",
			Short: "Serve MCP over stdin/stdout",
			Args:  cobra.NoArgs,
			RunE:  serveStdio,
		},
		newHTTPCommand(errOut),
		newToolsCommand(out, errOut),
		newCallCommand(out, errOut),
	)
	return root
}

func newHTTPCommand(errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the tool catalog and tool calls over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, errOut)
			if err != nil {
				return err
			}
			if a.cfg.Token == "" {
				a.log.Warn("token not set; /mcp endpoints will be open. Set BILLING_MCP_TOKEN to secure.")
			}
			srv := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           server.New(server.Config{Token: a.cfg.Token}, a.dispatcher, a.log).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			a.log.Infof("Starting MCP HTTP server on :%s", a.cfg.Port)
			if a.cfg.TLSCert != "" {
				a.log.Info("TLS enabled: using provided certificate and key")
				err = srv.ListenAndServeTLS(a.cfg.TLSCert, a.cfg.TLSKey)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		},
	}
	config.AddHTTPFlags(cmd.Flags())
	return cmd
}

func newToolsCommand(out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, errOut)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"tools": a.dispatcher.Tools()})
		},
	}
}

func newCallCommand(out, errOut io.Writer) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print the result envelope",
		Example: `  billing-mcp call billing_get_client --args '{"id":"42"}'
  billing-mcp call billing_create_invoice --args '{"client_id":49,"date":"2026-02-22"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, errOut)
			if err != nil {
				return err
			}
			var toolArgs map[string]any
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}
			res := a.dispatcher.Call(cmd.Context(), args[0], toolArgs)
			if err := printJSON(out, res); err != nil {
				return err
			}
			if res.IsError {
				return errors.New("tool call failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "tool arguments as a JSON object")
	return cmd
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
