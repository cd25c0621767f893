package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"github.com/triage-ai/guardrails/internal/auth"
	"github.com/triage-ai/guardrails/internal/engine"
	"github.com/triage-ai/guardrails/internal/translate"
)

// Config is the resolved runtime configuration. Precedence, highest
// first: environment, YAML file, built-in defaults.
type Config struct {
	APIKey      string `mapstructure:"api_key"`
	IAMTokenURL string `mapstructure:"iam_token_url"`

	GuardrailsURL        string            `mapstructure:"guardrails_api_url"`
	PolicyID             string            `mapstructure:"policy_id"`
	InventoryID          string            `mapstructure:"inventory_id"`
	GovernanceInstanceID string            `mapstructure:"governance_instance_id"`
	DetectorPolicies     map[string]string `mapstructure:"detector_policies"`

	WatsonxURL       string `mapstructure:"watsonx_api_url"`
	WatsonxProjectID string `mapstructure:"watsonx_project_id"`
	WatsonxModelID   string `mapstructure:"watsonx_model_id"`

	BulkTimeout        time.Duration `mapstructure:"bulk_timeout"`
	DetectorTimeout    time.Duration `mapstructure:"detector_timeout"`
	TranslationTimeout time.Duration `mapstructure:"translation_timeout"`
	TokenTimeout       time.Duration `mapstructure:"token_timeout"`

	Concurrency          int `mapstructure:"concurrency"`
	TranslationCacheSize int `mapstructure:"translation_cache_size"`

	HTTPPort string `mapstructure:"http_port"`
	GRPCPort string `mapstructure:"grpc_port"` // empty disables the gRPC health server
	LogLevel string `mapstructure:"log_level"`
}

// envKeys maps configuration keys to the environment variables that
// override them.
var envKeys = map[string]string{
	"api_key":                "IBM_API_KEY",
	"iam_token_url":          "IAM_TOKEN_URL",
	"guardrails_api_url":     "GUARDRAILS_API_URL",
	"policy_id":              "POLICY_ID",
	"inventory_id":           "INVENTORY_ID",
	"governance_instance_id": "GOVERNANCE_INSTANCE_ID",
	"watsonx_api_url":        "WATSONX_API_URL",
	"watsonx_project_id":     "WATSONX_PROJECT_ID",
	"watsonx_model_id":       "WATSONX_MODEL_ID",
	"bulk_timeout":           "GUARDRAILS_BULK_TIMEOUT",
	"detector_timeout":       "GUARDRAILS_DETECTOR_TIMEOUT",
	"translation_timeout":    "GUARDRAILS_TRANSLATION_TIMEOUT",
	"token_timeout":          "GUARDRAILS_TOKEN_TIMEOUT",
	"concurrency":            "GUARDRAILS_CONCURRENCY",
	"translation_cache_size": "GUARDRAILS_TRANSLATION_CACHE_SIZE",
	"http_port":              "GUARDRAILS_HTTP_PORT",
	"grpc_port":              "GUARDRAILS_GRPC_PORT",
	"log_level":              "GUARDRAILS_LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("iam_token_url", auth.DefaultTokenURL)
	v.SetDefault("guardrails_api_url", "https://api.aiopenscale.cloud.ibm.com")
	v.SetDefault("policy_id", "4af9a4b1-6801-440e-8f81-5254221915cc")
	v.SetDefault("inventory_id", "a65bc085-8137-4293-b505-ac682c99da35")
	v.SetDefault("governance_instance_id", "90e1f320-a1aa-4527-b4d9-1a9ad75d2182")
	v.SetDefault("watsonx_api_url", translate.DefaultBaseURL)
	v.SetDefault("watsonx_model_id", translate.DefaultModelID)
	v.SetDefault("bulk_timeout", engine.DefaultBulkTimeout)
	v.SetDefault("detector_timeout", engine.DefaultDetectorTimeout)
	v.SetDefault("translation_timeout", translate.DefaultTimeout)
	v.SetDefault("token_timeout", auth.DefaultExchangeTimeout)
	v.SetDefault("concurrency", engine.DefaultConcurrency)
	v.SetDefault("translation_cache_size", translate.DefaultCacheSize)
	v.SetDefault("http_port", "8080")
	v.SetDefault("grpc_port", "")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. path may be empty, in which case only the
// environment and the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values Load cannot coerce. A missing API key is not
// an error here; see RequireAPIKey.
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"bulk_timeout":        c.BulkTimeout,
		"detector_timeout":    c.DetectorTimeout,
		"translation_timeout": c.TranslationTimeout,
		"token_timeout":       c.TokenTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.TranslationCacheSize < 1 {
		errs = append(errs, fmt.Errorf("translation_cache_size must be at least 1, got %d", c.TranslationCacheSize))
	}
	if err := validPort("http_port", c.HTTPPort); err != nil {
		errs = append(errs, err)
	}
	if c.GRPCPort != "" {
		if err := validPort("grpc_port", c.GRPCPort); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.GuardrailsURL == "" {
		errs = append(errs, errors.New("guardrails_api_url is required"))
	}
	return errors.Join(errs...)
}

// RequireAPIKey returns auth.ErrMissingAPIKey when no key is configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return auth.ErrMissingAPIKey
	}
	return nil
}

func (c *Config) TokenCache() auth.TokenCacheConfig {
	return auth.TokenCacheConfig{
		TokenURL: c.IAMTokenURL,
		Timeout:  c.TokenTimeout,
	}
}

// Client returns the enforcement client settings. Per-detector policy ids
// come from POLICY_ID_<DETECTOR>, then detector_policies, then policy_id.
func (c *Config) Client() engine.ClientConfig {
	return engine.ClientConfig{
		BaseURL:              c.GuardrailsURL,
		InventoryID:          c.InventoryID,
		GovernanceInstanceID: c.GovernanceInstanceID,
		Policies: &engine.PolicyResolver{
			Default:   c.PolicyID,
			Overrides: c.DetectorPolicies,
			Lookup:    os.LookupEnv,
		},
		BulkTimeout:     c.BulkTimeout,
		DetectorTimeout: c.DetectorTimeout,
		Concurrency:     c.Concurrency,
	}
}

func (c *Config) Translation() translate.Config {
	return translate.Config{
		BaseURL:   c.WatsonxURL,
		ProjectID: c.WatsonxProjectID,
		ModelID:   c.WatsonxModelID,
		Timeout:   c.TranslationTimeout,
		CacheSize: c.TranslationCacheSize,
	}
}

func validPort(name, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s must be a port number, got %q", name, port)
	}
	return nil
}
