package translate

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/metrics"
	"github.com/triage-ai/guardrails/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultBaseURL   = "https://us-south.ml.cloud.ibm.com"
	DefaultModelID   = "mistralai/mistral-small-3-1-24b-instruct-2503"
	DefaultTimeout   = 60 * time.Second
	DefaultCacheSize = 512

	generationPath = "/ml/v1/text/generation"
	apiVersion     = "2024-03-14"
	errorBodyLen   = 200
)

// Result is the outcome of one detect-and-translate pass.
type Result struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	IsEnglish      bool   `json:"is_english"`
	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Config addresses the text generation service.
type Config struct {
	BaseURL   string
	ProjectID string
	ModelID   string
	Timeout   time.Duration
	CacheSize int
}

// Gate detects the language of a text and translates it to English
// through an LLM. Successful results are cached by a hash of the text.
type Gate struct {
	cfg     Config
	params  Parameters
	tokens  auth.TokenSource
	http    *resty.Client
	cache   *lru.Cache[string, Result]
	schema  *jsonschema.Schema
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGate creates a Gate. Zero config fields take the defaults; a
// missing project id is reported per call rather than here.
func NewGate(cfg Config, tokens auth.TokenSource, m *metrics.Metrics, logger *zap.Logger) (*Gate, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, Result](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("translation cache: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	return &Gate{
		cfg:     cfg,
		params:  DefaultParameters(),
		tokens:  tokens,
		http:    remote.NewClient("watsonx", m),
		cache:   cache,
		schema:  schema,
		metrics: m,
		logger:  logger,
	}, nil
}

// Endpoint returns the text generation URL.
func (g *Gate) Endpoint() string {
	return g.cfg.BaseURL + generationPath + "?version=" + apiVersion
}

// DetectAndTranslate returns the English rendering of text. Failures are
// reported in the result: the text is then treated as English and
// returned unchanged. Every answered round trip is cached, including one
// whose reply could not be parsed; transport and status failures are not.
func (g *Gate) DetectAndTranslate(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{
			OriginalText:   text,
			TranslatedText: text,
			SourceLanguage: "unknown",
			IsEnglish:      true,
			Success:        true,
		}
	}

	key := cacheKey(text)
	if cached, ok := g.cache.Get(key); ok {
		g.metrics.TranslationCache(true)
		return cached
	}
	g.metrics.TranslationCache(false)

	res, answered := g.translate(ctx, text)
	if answered {
		g.cache.Add(key, res)
	}
	return res
}

// Len reports the number of cached translations.
func (g *Gate) Len() int {
	return g.cache.Len()
}

// translate performs one round trip. answered is true when the service
// returned 200, whether or not the reply parsed.
func (g *Gate) translate(ctx context.Context, text string) (res Result, answered bool) {
	if g.cfg.ProjectID == "" {
		return fallback(text, "watsonx.ai project ID required. Set WATSONX_PROJECT_ID env var."), false
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return fallback(text, "Authentication failed: "+err.Error()), false
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(generationRequest{
			Input:      buildPrompt(text),
			ModelID:    g.cfg.ModelID,
			ProjectID:  g.cfg.ProjectID,
			Parameters: g.params,
		}).
		Post(g.Endpoint())
	if err != nil {
		g.logger.Warn("translation request failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if remote.IsTimeout(err) {
			return fallback(text, "Translation request timed out"), false
		}
		return fallback(text, "Request failed: "+err.Error()), false
	}

	if resp.StatusCode() != http.StatusOK {
		g.logger.Warn("translation request rejected",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		se := &remote.StatusError{Code: resp.StatusCode(), Body: remote.Truncate(string(resp.Body()), errorBodyLen)}
		return fallback(text, se.Error()), false
	}

	res, err = parseGeneration(resp.Body(), g.schema, text)
	if err != nil {
		g.logger.Warn("translation response unparseable", zap.Error(err))
		return fallback(text, "Failed to parse LLM response: "+err.Error()), true
	}

	g.logger.Debug("translation complete",
		zap.String("source_language", res.SourceLanguage),
		zap.Bool("is_english", res.IsEnglish),
		zap.Duration("duration", time.Since(start)),
	)
	return res, true
}

func fallback(text, msg string) Result {
	return Result{
		OriginalText:   text,
		TranslatedText: text,
		SourceLanguage: "unknown",
		IsEnglish:      true,
		Success:        false,
		ErrorMessage:   msg,
	}
}

func cacheKey(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
