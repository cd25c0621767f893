package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// translationSchema constrains the JSON object the model is asked for.
// Fields are optional; absent ones fall back to defaults.
const translationSchema = `{
	"type": "object",
	"properties": {
		"source_language": {"type": "string"},
		"is_english": {"type": "boolean"},
		"translated_text": {"type": "string"}
	}
}`

var errNoResults = errors.New("no results in response")

func compileSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(translationSchema), &doc); err != nil {
		return nil, fmt.Errorf("translation schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("translation.json", doc); err != nil {
		return nil, fmt.Errorf("translation schema: %w", err)
	}
	return c.Compile("translation.json")
}

// stripFences extracts the body of a ```json or ``` fenced block.
func stripFences(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(s, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(s)
}

// parseGeneration reads results[0].generated_text from a text
// generation response and decodes the translation object inside it.
func parseGeneration(body []byte, schema *jsonschema.Schema, original string) (Result, error) {
	var resp struct {
		Results []struct {
			GeneratedText string `json:"generated_text"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, err
	}
	if len(resp.Results) == 0 {
		return Result{}, errNoResults
	}

	generated := stripFences(strings.TrimSpace(resp.Results[0].GeneratedText))

	var doc any
	if err := json.Unmarshal([]byte(generated), &doc); err != nil {
		return Result{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Result{}, err
	}

	fields := doc.(map[string]any)
	res := Result{
		OriginalText:   original,
		TranslatedText: original,
		SourceLanguage: "unknown",
		IsEnglish:      true,
		Success:        true,
	}
	if v, ok := fields["translated_text"].(string); ok {
		res.TranslatedText = v
	}
	if v, ok := fields["source_language"].(string); ok {
		res.SourceLanguage = v
	}
	if v, ok := fields["is_english"].(bool); ok {
		res.IsEnglish = v
	}
	return res, nil
}
