package translate

import "strings"

const promptTemplate = `You are a language detection and translation assistant.

TASK: Analyze the following text and respond in JSON format.

INPUT TEXT:
"""
{text}
"""

INSTRUCTIONS:
1. Detect the language of the input text
2. If the text is NOT in English, translate it to English
3. If the text IS in English, return it unchanged

RESPOND WITH ONLY THIS JSON FORMAT (no other text):
{
    "source_language": "<detected language name>",
    "is_english": <true or false>,
    "translated_text": "<English translation or original if already English>"
}

IMPORTANT:
- Return ONLY the JSON, no explanations
- Preserve the meaning and intent of the original text
- For mixed-language text, translate all non-English portions to English`

// buildPrompt embeds text in the instruction prompt.
func buildPrompt(text string) string {
	return strings.Replace(promptTemplate, "{text}", text, 1)
}

// Parameters are the decoding settings sent with every generation call.
type Parameters struct {
	DecodingMethod    string  `json:"decoding_method"`
	MaxNewTokens      int     `json:"max_new_tokens"`
	MinNewTokens      int     `json:"min_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// DefaultParameters returns greedy decoding with room for long texts.
func DefaultParameters() Parameters {
	return Parameters{
		DecodingMethod:    "greedy",
		MaxNewTokens:      2000,
		MinNewTokens:      10,
		Temperature:       0.1,
		TopP:              1,
		RepetitionPenalty: 1.0,
	}
}

type generationRequest struct {
	Input      string     `json:"input"`
	ModelID    string     `json:"model_id"`
	ProjectID  string     `json:"project_id"`
	Parameters Parameters `json:"parameters"`
}
