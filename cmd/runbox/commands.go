package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/runbox/pkg/app"
	"github.com/rhuss/runbox/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "runbox",
		Short: "Sandboxed code execution with error diagnosis and self-correction",
		Long: `runbox runs Python, Bash, JavaScript and other snippets in a workspace,
either as a local subprocess or inside a container. Failed runs are classified,
and when a code-generation backend is configured, repaired and retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: RUNBOX_CONFIG, ./config.yaml or /etc/runbox/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newServeCmd(opts),
		newExecCmd(opts),
		newFixCmd(opts),
		newMCPCmd(opts),
		newInfoCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and builds the app. Logs always go to
// stderr so stdout stays free for results and the MCP stdio transport.
func (o *rootOptions) load(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger := app.NewLogger(cfg.Logging, stderr)
	slog.SetDefault(logger)
	return app.New(ctx, *cfg, logger)
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, with MCP when enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			srv, err := a.HTTPServer(version)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}

type codeOptions struct {
	lang string
	file string
	json bool
}

// readCode takes the snippet from --file, from the arguments, or from
// stdin when neither is given or the only argument is "-".
func (c *codeOptions) readCode(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case c.file != "" && len(args) > 0:
		return "", errors.New("pass either --file or inline code, not both")
	case c.file != "":
		b, err := os.ReadFile(c.file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case len(args) == 0 || (len(args) == 1 && args[0] == "-"):
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return strings.Join(args, " "), nil
	}
}

func (c *codeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.lang, "lang", "l", "python", "language of the code")
	cmd.Flags().StringVarP(&c.file, "file", "f", "", "read code from file")
	cmd.Flags().BoolVar(&c.json, "json", false, "print the result as JSON")
}

func newExecCmd(opts *rootOptions) *cobra.Command {
	c := &codeOptions{}
	cmd := &cobra.Command{
		Use:   "exec [code | -]",
		Short: "Run code once in the sandbox",
		Long:  "Run code once in the sandbox. Stdout and stderr are passed through and the process exits with the code's exit status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := c.readCode(cmd, args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(code) == "" {
				return errors.New("no code given")
			}

			a, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			res := a.Sandbox.Execute(cmd.Context(), code, c.lang)
			if c.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
				fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
			}
			if res.ExitCode != 0 {
				return &exitError{code: clampExit(res.ExitCode)}
			}
			return nil
		},
	}
	c.bind(cmd)
	return cmd
}

func newFixCmd(opts *rootOptions) *cobra.Command {
	c := &codeOptions{}
	cmd := &cobra.Command{
		Use:   "fix [code | -]",
		Short: "Run code and let the generator repair it on failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := c.readCode(cmd, args)
			if err != nil {
				return err
			}
			if strings.TrimSpace(code) == "" {
				return errors.New("no code given")
			}

			a, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)
			if a.Loop == nil {
				return errors.New("code correction needs engine.backend_url (or RUNBOX_BACKEND_URL)")
			}

			out := a.Loop.Run(cmd.Context(), code, c.lang)
			if c.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			}
			if !out.Success {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	c.bind(cmd)
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)
			return a.MCPServer(version).ServeStdio(cmd.Context())
		},
	}
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the effective sandbox settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context(), io.Discard)
			if err != nil {
				return err
			}
			defer closeApp(a)

			info := map[string]any{
				"version":    version,
				"sandbox":    a.Sandbox.Info(),
				"history":    a.Config.History.Type,
				"search":     a.Search != nil,
				"correction": a.Loop != nil,
				"auth":       a.Config.Auth.Type,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "runbox", version)
		},
	}
}

// clampExit maps exit statuses outside 1..255, such as -1 for a killed
// process, to 1.
func clampExit(code int) int {
	if code < 1 || code > 255 {
		return 1
	}
	return code
}
