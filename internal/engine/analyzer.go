package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/triage-ai/guardrails/internal/translate"
	"go.uber.org/zap"
)

// Translator renders text in English ahead of detection.
type Translator interface {
	DetectAndTranslate(ctx context.Context, text string) translate.Result
}

// Inputs are values shared by every detector that needs them.
type Inputs struct {
	SystemPrompt string `json:"system_prompt,omitempty"` // topic_relevance, prompt_safety_risk
	Context      string `json:"context,omitempty"`       // groundedness, context_relevance
	UserQuestion string `json:"user_question,omitempty"` // answer_relevance
}

// Analysis is the result of one Analyze or AnalyzeBulk call. Exactly one
// of Individual and Enforcement is set.
type Analysis struct {
	AnalyzedText string             `json:"analyzed_text"`
	Translation  *translate.Result  `json:"translation,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Individual   *IndividualResult  `json:"individual,omitempty"`
	Enforcement  *EnforcementResult `json:"enforcement,omitempty"`
}

// Analyzer chains the optional translation pass with detection.
type Analyzer struct {
	client     *Client
	translator Translator
	logger     *zap.Logger
}

// NewAnalyzer creates an Analyzer. translator may be nil, in which case
// multilingual requests fall back to the original text with a warning.
func NewAnalyzer(client *Client, translator Translator, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, translator: translator, logger: logger}
}

// Analyze tests the selected detectors one call each. With multilingual
// set, non-English text is translated first and only the translation is
// analyzed; a failed translation falls back to the original text.
func (a *Analyzer) Analyze(ctx context.Context, text string, dir Direction, selection []DetectorConfig, inputs Inputs, multilingual bool) Analysis {
	selection = ApplyInputs(dir, selection, inputs)
	warnings := a.Validate(dir, selection)

	analyzed, tr, tw := a.prepare(ctx, text, multilingual)
	res := a.client.TestIndividually(ctx, analyzed, dir, selection)

	return Analysis{
		AnalyzedText: analyzed,
		Translation:  tr,
		Warnings:     append(warnings, tw...),
		Individual:   &res,
	}
}

// AnalyzeBulk is Analyze for bulk mode.
func (a *Analyzer) AnalyzeBulk(ctx context.Context, text string, dir Direction, overrides map[string]map[string]any, multilingual bool) Analysis {
	analyzed, tr, warnings := a.prepare(ctx, text, multilingual)
	res := a.client.Enforce(ctx, analyzed, dir, overrides)

	return Analysis{
		AnalyzedText: analyzed,
		Translation:  tr,
		Warnings:     warnings,
		Enforcement:  &res,
	}
}

// Validate reports selections that will run with defaults or outside
// their direction. It never rejects a selection.
func (a *Analyzer) Validate(dir Direction, selection []DetectorConfig) []string {
	var warnings []string
	for _, sel := range selection {
		spec, ok := a.client.registry.Lookup(dir, sel.ID)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("detector %q is not defined for %s text", sel.ID, dir))
			continue
		}
		if len(sel.Params) == 0 {
			continue // catalog defaults apply
		}
		if missing := spec.MissingParams(sel.Params); len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: missing %s, the service may apply its own defaults",
				spec.ID, strings.Join(missing, ", ")))
		}
	}
	return warnings
}

func (a *Analyzer) prepare(ctx context.Context, text string, multilingual bool) (string, *translate.Result, []string) {
	if !multilingual {
		return text, nil, nil
	}
	if a.translator == nil {
		return text, nil, []string{"Translation warning: translation is not configured. Proceeding with original text only."}
	}

	tr := a.translator.DetectAndTranslate(ctx, text)
	switch {
	case !tr.Success:
		a.logger.Warn("translation failed, analyzing original text", zap.String("error", tr.ErrorMessage))
		return text, &tr, []string{fmt.Sprintf("Translation warning: %s. Proceeding with original text only.", tr.ErrorMessage)}
	case tr.IsEnglish:
		return text, &tr, nil
	default:
		return tr.TranslatedText, &tr, nil
	}
}

// ApplyInputs copies the shared inputs into the parameters of the
// detectors that consume them. Selections are not modified in place.
func ApplyInputs(dir Direction, selection []DetectorConfig, in Inputs) []DetectorConfig {
	out := make([]DetectorConfig, len(selection))
	for i, sel := range selection {
		params := make(map[string]any, len(sel.Params)+2)
		for k, v := range sel.Params {
			params[k] = v
		}

		switch {
		case dir == DirectionInput && (sel.ID == "topic_relevance" || sel.ID == "prompt_safety_risk"):
			if s := strings.TrimSpace(in.SystemPrompt); s != "" {
				params["system_prompt"] = s
			}
		case dir == DirectionOutput && (sel.ID == "groundedness" || sel.ID == "context_relevance"):
			if s := strings.TrimSpace(in.Context); s != "" {
				params["context"] = []any{s}
				params["context_type"] = "docs"
			}
		case dir == DirectionOutput && sel.ID == "answer_relevance":
			if s := strings.TrimSpace(in.UserQuestion); s != "" {
				params["prompt"] = s
			}
		}

		if len(params) == 0 {
			params = nil
		}
		out[i] = DetectorConfig{ID: sel.ID, Params: params}
	}
	return out
}
