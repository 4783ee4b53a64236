// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"cutiecart/internal/coupon"
	"cutiecart/internal/notify"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds all service configuration.
// Environment determines whether notification credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// Timezone is the IANA zone used for delivery defaults; empty means local.
	Timezone string

	// CatalogueFile is an optional YAML product list replacing the built-in one.
	CatalogueFile string

	Storage   StorageConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig

	// Coupons replaces the built-in coupon vocabulary when non-empty.
	Coupons []coupon.Definition

	// HandoffTTL bounds how long a placed order id waits for the confirmation view.
	HandoffTTL time.Duration
}

// StorageConfig selects and configures the cart storage backend.
type StorageConfig struct {
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	SQLitePath    string `json:"sqlite_path,omitempty"`
}

// NotifyConfig configures order notifications.
// In production, the credential fields are loaded from Secret Manager as JSON.
type NotifyConfig struct {
	notify.Config

	// LoopbackDryRun enables dry-run for requests addressed to a loopback host.
	// Nil means enabled.
	LoopbackDryRun *bool `json:"loopback_dry_run,omitempty"`

	BrowserTLS  bool     `json:"browser_tls,omitempty"`
	DryRunDelay Duration `json:"dry_run_delay,omitempty"`
	// Origin is the storefront URL sent as the Origin of notification calls.
	Origin string `json:"origin,omitempty"`

	// RateLimit is the sustained number of sends per second.
	RateLimit float64 `json:"rate_limit,omitempty"`
}

// LoopbackAutoDetect reports whether loopback hosts default to dry-run.
func (n NotifyConfig) LoopbackAutoDetect() bool {
	return n.LoopbackDryRun == nil || *n.LoopbackDryRun
}

// RateLimitConfig sizes per-client request limiting. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// Duration is a time.Duration read from JSON as a string such as "10m".
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:          envOrDefault("PORT", "8080"),
		Environment:   envOrDefault("ENVIRONMENT", "development"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		GCPProject:    os.Getenv("GCP_PROJECT"),
		StoreID:       os.Getenv("STORE_ID"),
		Timezone:      os.Getenv("TIMEZONE"),
		CatalogueFile: os.Getenv("CATALOGUE_FILE"),
	}

	// StoreID required in all environments
	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID environment variable required")
	}

	if err := cfg.loadSettingsFromEnv(); err != nil {
		return nil, err
	}

	// Load notification credentials based on environment
	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadCredentialsFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading notify config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port          string              `json:"port"`
		Environment   string              `json:"environment"`
		LogLevel      string              `json:"log_level"`
		StoreID       string              `json:"store_id"`
		Timezone      string              `json:"timezone"`
		CatalogueFile string              `json:"catalogue_file"`
		Storage       StorageConfig       `json:"storage"`
		Notify        NotifyConfig        `json:"notify"`
		RateLimit     RateLimitConfig     `json:"rate_limit"`
		Coupons       []coupon.Definition `json:"coupons"`
		HandoffTTL    Duration            `json:"handoff_ttl"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:          withDefault(fileConfig.Port, "8080"),
		Environment:   withDefault(fileConfig.Environment, "development"),
		LogLevel:      withDefault(fileConfig.LogLevel, "info"),
		StoreID:       fileConfig.StoreID,
		Timezone:      fileConfig.Timezone,
		CatalogueFile: fileConfig.CatalogueFile,
		Storage:       fileConfig.Storage,
		Notify:        fileConfig.Notify,
		RateLimit:     fileConfig.RateLimit,
		Coupons:       fileConfig.Coupons,
		HandoffTTL:    time.Duration(fileConfig.HandoffTTL),
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("store_id is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches notification credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}-notify/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s-notify/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applyCredentials(result.Payload.Data)
}

// applyCredentials merges a JSON credential payload into the notify config.
// Fields absent from the payload keep their current values.
func (c *Config) applyCredentials(data []byte) error {
	if err := json.Unmarshal(data, &c.Notify.Config); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadCredentialsFromEnv reads notification credentials from environment variables.
// Used in development mode for local testing.
func (c *Config) loadCredentialsFromEnv() error {
	c.Notify.ServiceID = os.Getenv("NOTIFY_SERVICE_ID")
	c.Notify.TemplateID = os.Getenv("NOTIFY_TEMPLATE_ID")
	c.Notify.PublicKey = os.Getenv("NOTIFY_PUBLIC_KEY")
	c.Notify.PrivateKey = os.Getenv("NOTIFY_PRIVATE_KEY")
	c.Notify.NotifyAddress = os.Getenv("NOTIFY_EMAIL")
	return nil
}

// loadSettingsFromEnv reads everything that is not a credential.
func (c *Config) loadSettingsFromEnv() error {
	c.Storage = StorageConfig{
		Backend:       envOrDefault("STORAGE_BACKEND", BackendMemory),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
	}

	var err error
	if c.Storage.RedisDB, err = envInt("REDIS_DB"); err != nil {
		return err
	}

	c.Notify.Endpoint = os.Getenv("NOTIFY_ENDPOINT")
	c.Notify.Origin = os.Getenv("NOTIFY_ORIGIN")
	if c.Notify.DryRun, err = envBoolPtr("NOTIFY_DRY_RUN"); err != nil {
		return err
	}
	if c.Notify.LoopbackDryRun, err = envBoolPtr("NOTIFY_LOOPBACK_DRY_RUN"); err != nil {
		return err
	}
	if b, err := envBoolPtr("NOTIFY_BROWSER_TLS"); err != nil {
		return err
	} else if b != nil {
		c.Notify.BrowserTLS = *b
	}
	d, err := envDuration("NOTIFY_DRY_RUN_DELAY")
	if err != nil {
		return err
	}
	c.Notify.DryRunDelay = Duration(d)
	if c.Notify.RateLimit, err = envFloat("NOTIFY_RATE_LIMIT"); err != nil {
		return err
	}

	if c.RateLimit.RPS, err = envFloat("RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if c.RateLimit.Burst, err = envInt("RATE_LIMIT_BURST"); err != nil {
		return err
	}

	if c.HandoffTTL, err = envDuration("HANDOFF_TTL"); err != nil {
		return err
	}

	// Parse coupon vocabulary JSON if provided
	if couponsJSON := os.Getenv("COUPONS"); couponsJSON != "" {
		if err := json.Unmarshal([]byte(couponsJSON), &c.Coupons); err != nil {
			return fmt.Errorf("parsing COUPONS JSON: %w", err)
		}
	}

	return nil
}

// validate checks that all configuration fields are consistent.
// Missing notification credentials are not an error: sends are skipped instead.
func (c *Config) validate() error {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis storage backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (memory, redis or sqlite)", c.Storage.Backend)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	for i, d := range c.Coupons {
		if strings.TrimSpace(d.Code) == "" {
			return fmt.Errorf("coupon %d: code is required", i)
		}
	}

	if c.HandoffTTL < 0 {
		return fmt.Errorf("handoff_ttl must not be negative")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CouponVocabulary returns the configured coupon codes, or the built-in ones.
func (c *Config) CouponVocabulary() *coupon.Vocabulary {
	if len(c.Coupons) == 0 {
		return coupon.NewVocabulary(coupon.Defaults)
	}
	return coupon.NewVocabulary(c.Coupons)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

// envBoolPtr returns nil when key is unset so callers can tell "false" from "not said".
func envBoolPtr(key string) (*bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &b, nil
}
