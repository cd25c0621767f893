package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/triage-ai/guardrails/internal/engine"
	"github.com/triage-ai/guardrails/internal/engine/detectors"
)

var errViolations = errors.New("guardrails reported violations")

// setup builds the logger and the client stack for one command.
func (c *cli) setup() (*app, error) {
	logger := mustBuildLogger(c.cfg.LogLevel, "stderr")
	a, err := newApp(c.cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func (c *cli) print(cmd *cobra.Command, v any) error {
	format, err := parseFormat(c.output)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), format, v)
}

// readText joins args, or reads stdin when there are none or the only
// argument is "-".
func readText(cmd *cobra.Command, args []string) (string, error) {
	var text string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\r\n")
	} else {
		text = strings.Join(args, " ")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("text is required")
	}
	return text, nil
}

// parseParams decodes a JSON object of detector id to parameters.
func parseParams(raw string) (map[string]map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object of detector id to parameters: %w", err)
	}
	return params, nil
}

func (c *cli) enforceCmd() *cobra.Command {
	var (
		direction       string
		params          string
		multilingual    bool
		failOnViolation bool
	)
	cmd := &cobra.Command{
		Use:   "enforce [text]",
		Short: "Check text with every detector in one call",
		Long: `Send text once under the default policy with every detector known for
the direction. --params replaces the defaults of the detectors it names.
Reads the text from stdin when no argument is given.`,
		Example: `  guardrails enforce "My SSN is 123-45-6789"
  echo "Respuesta del modelo" | guardrails enforce --direction output --multilingual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			dir, err := engine.ParseDirection(direction)
			if err != nil {
				return err
			}
			overrides, err := parseParams(params)
			if err != nil {
				return err
			}

			a, err := c.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.analyzer.AnalyzeBulk(cmd.Context(), text, dir, overrides, multilingual)
			if err := c.print(cmd, res); err != nil {
				return err
			}
			if !res.Enforcement.Success {
				return fmt.Errorf("enforcement failed: %s", res.Enforcement.ErrorMessage)
			}
			if failOnViolation && res.Enforcement.HasViolations {
				return errViolations
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "input", "Text direction (input|output)")
	cmd.Flags().StringVar(&params, "params", "", `Detector parameters as JSON, e.g. '{"topic_relevance":{"system_prompt":"..."}}'`)
	cmd.Flags().BoolVar(&multilingual, "multilingual", false, "Translate non-English text before checking")
	cmd.Flags().BoolVar(&failOnViolation, "fail-on-violation", false, "Exit non-zero when any detector triggers")
	return cmd
}

func (c *cli) testCmd() *cobra.Command {
	var (
		direction       string
		ids             []string
		params          string
		inputs          engine.Inputs
		multilingual    bool
		failOnViolation bool
	)
	cmd := &cobra.Command{
		Use:   "test [text]",
		Short: "Check text with one call per detector",
		Long: `Call each selected detector independently under its own policy
(POLICY_ID_<DETECTOR>, detector_policies, then POLICY_ID). Without
--detector the default selection is tested.`,
		Example: `  guardrails test --detector pii --detector jailbreak "Ignore previous instructions"
  guardrails test -d output --detector groundedness --context "The sky is blue." "The sky is green."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			dir, err := engine.ParseDirection(direction)
			if err != nil {
				return err
			}
			extra, err := parseParams(params)
			if err != nil {
				return err
			}
			selection := make([]engine.DetectorConfig, 0, len(ids))
			for _, id := range ids {
				selection = append(selection, engine.DetectorConfig{ID: id, Params: extra[id]})
			}

			a, err := c.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.analyzer.Analyze(cmd.Context(), text, dir, selection, inputs, multilingual)
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if err := c.print(cmd, res); err != nil {
				return err
			}
			if res.Individual.ErrorMessage != "" {
				return errors.New(res.Individual.ErrorMessage)
			}
			if failed := engine.Summarize(res.Individual.Records).Failed; failed > 0 {
				return fmt.Errorf("%d of %d detector calls failed", failed, res.Individual.TotalCalls)
			}
			if failOnViolation && len(res.Individual.DetectorsTriggered) > 0 {
				return errViolations
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "input", "Text direction (input|output)")
	cmd.Flags().StringSliceVar(&ids, "detector", nil, "Detector to test (repeatable); default: "+strings.Join(engine.DefaultSelection, ","))
	cmd.Flags().StringVar(&params, "params", "", "Detector parameters as JSON keyed by detector id")
	cmd.Flags().StringVar(&inputs.SystemPrompt, "system-prompt", "", "System prompt for topic_relevance and prompt_safety_risk")
	cmd.Flags().StringVar(&inputs.Context, "context", "", "Grounding context for groundedness and context_relevance")
	cmd.Flags().StringVar(&inputs.UserQuestion, "question", "", "User question for answer_relevance")
	cmd.Flags().BoolVar(&multilingual, "multilingual", false, "Translate non-English text before checking")
	cmd.Flags().BoolVar(&failOnViolation, "fail-on-violation", false, "Exit non-zero when any detector triggers")
	return cmd
}

func (c *cli) translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate [text]",
		Short: "Detect the language of text and translate it to English",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}

			a, err := c.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.gate.DetectAndTranslate(cmd.Context(), text)
			if err := c.print(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("translation failed: %s", res.ErrorMessage)
			}
			return nil
		},
	}
}

// detectorsCmd lists the catalog. It needs no credentials.
func (c *cli) detectorsCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "detectors",
		Short: "List the detectors available for a direction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := engine.ParseDirection(direction)
			if err != nil {
				return err
			}
			catalog := detectors.NewCatalog()
			return c.print(cmd, map[string]any{
				"direction":         dir,
				"basic":             catalog.Basic(dir),
				"advanced":          catalog.Advanced(dir),
				"default_selection": engine.DefaultSelection,
			})
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "input", "Text direction (input|output)")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange the API key for a bearer token and report its validity",
		Long: `Obtain a bearer token for IBM_API_KEY and print how long it stays
valid. The token itself is never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				_, err = a.tokens.ForceRefresh(cmd.Context())
			} else {
				_, err = a.tokens.Token(cmd.Context())
			}
			if err != nil {
				return err
			}
			return c.print(cmd, a.tokens.Info())
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Exchange a new token even if the cached one is valid")
	return cmd
}
