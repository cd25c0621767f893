package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/triage-ai/guardrails/internal/config"
)

// cli holds the global flags and the configuration they resolve to.
type cli struct {
	configFile string
	output     string
	logLevel   string

	cfg *config.Config
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "guardrails",
		Short: "Run text through watsonx.governance guardrails",
		Long: `guardrails sends prompts and model responses to the watsonx.governance
guardrails enforcement service, either once with every detector or once
per detector, and optionally translates non-English text first.

Configuration comes from --config, then the environment (IBM_API_KEY,
POLICY_ID, WATSONX_PROJECT_ID, ...), then built-in defaults.`,
		PersistentPreRunE: c.loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", string(formatJSON), "Output format (json|yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug|info|warn|error)")

	root.AddCommand(
		c.serveCmd(),
		c.enforceCmd(),
		c.testCmd(),
		c.translateCmd(),
		c.detectorsCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) loadConfig(_ *cobra.Command, _ []string) error {
	if _, err := parseFormat(c.output); err != nil {
		return err
	}

	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	c.cfg = cfg
	return nil
}
