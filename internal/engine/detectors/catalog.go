package detectors

import (
	"github.com/triage-ai/guardrails/internal/engine"
)

const defaultSystemPrompt = "You are a helpful AI assistant."

// builtin is every detector the enforcement service offers, in display
// order. Filtering by direction yields the input and output catalogs.
var builtin = []engine.DetectorSpec{
	{
		ID:            "pii",
		DisplayName:   "PII Detection",
		Description:   "Personally Identifiable Information (emails, phones, SSN, etc.)",
		Icon:          "🔒",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:             "topic_relevance",
		DisplayName:    "Topic Relevance",
		Description:    "Check if input is relevant to the system prompt topic",
		Icon:           "🎯",
		RequiredParams: []string{"system_prompt"},
		DefaultParams:  map[string]any{"system_prompt": defaultSystemPrompt},
		Applicability:  engine.AppliesInput,
	},
	{
		ID:             "prompt_safety_risk",
		DisplayName:    "Prompt Safety Risk",
		Description:    "Detect risky prompts based on system context",
		Icon:           "⚡",
		RequiredParams: []string{"system_prompt"},
		DefaultParams:  map[string]any{"system_prompt": defaultSystemPrompt},
		Applicability:  engine.AppliesInput,
	},
	{
		ID:            "harm",
		DisplayName:   "Harm Detection",
		Description:   "Harmful or dangerous content",
		Icon:          "⚠️",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "jailbreak",
		DisplayName:   "Jailbreak Detection",
		Description:   "Prompt injection or jailbreak attempts",
		Icon:          "🚫",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "social_bias",
		DisplayName:   "Social Bias",
		Description:   "Social bias and discrimination",
		Icon:          "⚖️",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "profanity",
		DisplayName:   "Profanity",
		Description:   "Profane or vulgar language",
		Icon:          "🤬",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "sexual_content",
		DisplayName:   "Sexual Content",
		Description:   "Sexually explicit content",
		Icon:          "🔞",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "unethical_behavior",
		DisplayName:   "Unethical Behavior",
		Description:   "Unethical or illegal behavior",
		Icon:          "⛔",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "violence",
		DisplayName:   "Violence",
		Description:   "Violent content or threats",
		Icon:          "💢",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:            "hap",
		DisplayName:   "HAP",
		Description:   "Hate, Abuse, and Profanity combined",
		Icon:          "😠",
		Applicability: engine.AppliesBoth,
	},
	{
		ID:             "groundedness",
		DisplayName:    "Groundedness",
		Description:    "Check if response is grounded in provided context",
		Icon:           "📚",
		RequiredParams: []string{"context_type", "context"},
		DefaultParams:  map[string]any{"context_type": "docs", "context": []any{}},
		Applicability:  engine.AppliesOutput,
	},
	{
		ID:             "context_relevance",
		DisplayName:    "Context Relevance",
		Description:    "Check if response is relevant to the context",
		Icon:           "🔗",
		RequiredParams: []string{"context_type", "context"},
		DefaultParams:  map[string]any{"context_type": "docs", "context": []any{}},
		Applicability:  engine.AppliesOutput,
	},
	{
		ID:             "answer_relevance",
		DisplayName:    "Answer Relevance",
		Description:    "Check if answer is relevant to the prompt",
		Icon:           "💬",
		RequiredParams: []string{"prompt", "generated_text"},
		DefaultParams:  map[string]any{"prompt": "", "generated_text": ""},
		Applicability:  engine.AppliesOutput,
	},
}

// Catalog is the static engine.Registry of remote detectors.
type Catalog struct {
	input  []engine.DetectorSpec
	output []engine.DetectorSpec
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	for _, s := range builtin {
		if s.AppliesTo(engine.DirectionInput) {
			c.input = append(c.input, s)
		}
		if s.AppliesTo(engine.DirectionOutput) {
			c.output = append(c.output, s)
		}
	}
	return c
}

// Specs returns the detectors for d in display order. The slice is a copy.
func (c *Catalog) Specs(d engine.Direction) []engine.DetectorSpec {
	src := c.input
	if d == engine.DirectionOutput {
		src = c.output
	}
	return append([]engine.DetectorSpec(nil), src...)
}

func (c *Catalog) Lookup(d engine.Direction, id string) (engine.DetectorSpec, bool) {
	for _, s := range c.Specs(d) {
		if s.ID == id {
			return s, true
		}
	}
	return engine.DetectorSpec{}, false
}

// Basic returns the detectors for d that take no parameters.
func (c *Catalog) Basic(d engine.Direction) []engine.DetectorSpec {
	return c.partition(d, false)
}

// Advanced returns the detectors for d that need auxiliary parameters.
func (c *Catalog) Advanced(d engine.Direction) []engine.DetectorSpec {
	return c.partition(d, true)
}

func (c *Catalog) partition(d engine.Direction, withParams bool) []engine.DetectorSpec {
	var out []engine.DetectorSpec
	for _, s := range c.Specs(d) {
		if s.HasParams() == withParams {
			out = append(out, s)
		}
	}
	return out
}

// MissingParams lists required parameters of id absent from params. It
// returns nil for unknown detectors.
func (c *Catalog) MissingParams(d engine.Direction, id string, params map[string]any) []string {
	s, ok := c.Lookup(d, id)
	if !ok {
		return nil
	}
	return s.MissingParams(params)
}
