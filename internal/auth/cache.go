package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/triage-ai/guardrails/internal/metrics"
	"github.com/triage-ai/guardrails/internal/remote"
	"go.uber.org/zap"
)

const (
	DefaultTokenURL        = "https://iam.cloud.ibm.com/identity/token"
	DefaultRefreshBuffer   = 300 * time.Second
	DefaultExchangeTimeout = 30 * time.Second

	apiKeyGrantType  = "urn:ibm:params:oauth:grant-type:apikey"
	defaultExpiresIn = 3600 // seconds, used when the IAM response omits expires_in
)

// Credential is a bearer token and the instant it stops being valid.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// TokenCacheConfig controls where and how credentials are exchanged.
type TokenCacheConfig struct {
	TokenURL      string
	RefreshBuffer time.Duration
	Timeout       time.Duration
}

// TokenCache keeps one credential per API key and exchanges a new one when
// the cached credential has less than RefreshBuffer of validity left.
//
// A single mutex guards the whole cache and is held across the exchange,
// so concurrent callers that arrive during a refresh block and then reuse
// the refreshed credential instead of issuing their own exchange.
type TokenCache struct {
	mu     sync.Mutex
	creds  map[string]Credential
	cfg    TokenCacheConfig
	http   *resty.Client
	m      *metrics.Metrics
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenCache creates an empty cache. Zero config fields fall back to the
// IBM Cloud IAM defaults.
func NewTokenCache(cfg TokenCacheConfig, m *metrics.Metrics, logger *zap.Logger) *TokenCache {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExchangeTimeout
	}
	return &TokenCache{
		creds:  make(map[string]Credential),
		cfg:    cfg,
		http:   remote.NewClient("iam", m),
		m:      m,
		logger: logger,
		now:    time.Now,
	}
}

// ForKey returns a TokenSource bound to apiKey.
func (c *TokenCache) ForKey(apiKey string) *KeySource {
	return &KeySource{cache: c, apiKey: apiKey}
}

// Token returns a cached token for apiKey, exchanging a new one first when
// the cached credential is missing or inside the refresh buffer.
func (c *TokenCache) Token(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", &AuthError{Op: "token", Err: ErrMissingAPIKey}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cred, ok := c.creds[apiKey]; ok && c.fresh(cred) {
		return cred.Token, nil
	}
	return c.refreshLocked(ctx, apiKey)
}

// ForceRefresh exchanges a new token for apiKey regardless of the cached
// credential's remaining validity.
func (c *TokenCache) ForceRefresh(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", &AuthError{Op: "refresh", Err: ErrMissingAPIKey}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshLocked(ctx, apiKey)
}

func (c *TokenCache) fresh(cred Credential) bool {
	return cred.Token != "" && c.now().Before(cred.ExpiresAt.Add(-c.cfg.RefreshBuffer))
}

func (c *TokenCache) refreshLocked(ctx context.Context, apiKey string) (string, error) {
	cred, err := c.exchange(ctx, apiKey)
	if err != nil {
		c.m.TokenRefresh(false)
		c.logger.Warn("credential exchange failed", zap.Error(err))
		return "", &AuthError{Op: "exchange", Err: err}
	}
	c.m.TokenRefresh(true)
	c.creds[apiKey] = cred
	c.logger.Info("credential refreshed",
		zap.Time("expires_at", cred.ExpiresAt),
	)
	return cred.Token, nil
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   *float64 `json:"expires_in"`
}

func (c *TokenCache) exchange(ctx context.Context, apiKey string) (Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": apiKeyGrantType,
			"apikey":     apiKey,
		}).
		Post(c.cfg.TokenURL)
	if err != nil {
		return Credential{}, remote.Classify(err)
	}
	if resp.IsError() {
		return Credential{}, &remote.StatusError{
			Code: resp.StatusCode(),
			Body: remote.Truncate(resp.String(), 200),
		}
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Credential{}, remote.ParseError(err)
	}
	if body.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: %w", remote.ErrParse, ErrMissingToken)
	}

	expiresIn := float64(defaultExpiresIn)
	if body.ExpiresIn != nil {
		expiresIn = *body.ExpiresIn
	}
	return Credential{
		Token:     body.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(expiresIn * float64(time.Second))),
	}, nil
}

// TokenInfo describes the cached credential for display.
type TokenInfo struct {
	Valid            bool   `json:"valid"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`
	ExpiresInMinutes int    `json:"expires_in_minutes,omitempty"`
	Message          string `json:"message"`
}

// Info reports the state of the cached credential for apiKey. It never
// triggers an exchange.
func (c *TokenCache) Info(apiKey string) TokenInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, ok := c.creds[apiKey]
	if !ok || cred.Token == "" {
		return TokenInfo{Message: "No token available"}
	}

	remaining := cred.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		return TokenInfo{Message: "Token expired"}
	}

	minutes := int(remaining / time.Minute)
	return TokenInfo{
		Valid:            true,
		ExpiresInSeconds: int(remaining / time.Second),
		ExpiresInMinutes: minutes,
		Message:          fmt.Sprintf("Token valid for %d minutes", minutes),
	}
}
