// Package config loads agencyops settings.
//
// Settings come from, in increasing priority: built-in defaults, a YAML
// file, and AGENCYOPS_* environment variables (AGENCYOPS_BILLING_GST_RATE
// sets billing.gst_rate). The merged result is checked against an embedded
// CUE schema before it is returned.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENCYOPS"

// Config is the full application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" json:"database"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
	Billing    BillingConfig    `mapstructure:"billing" json:"billing"`
	Conversion ConversionConfig `mapstructure:"conversion" json:"conversion"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile" json:"reconcile"`
	Stripe     StripeConfig     `mapstructure:"stripe" json:"stripe"`
	Xero       XeroConfig       `mapstructure:"xero" json:"xero"`
	Redis      RedisConfig      `mapstructure:"redis" json:"redis"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

type BillingConfig struct {
	GSTRate               float64 `mapstructure:"gst_rate" json:"gst_rate"`
	AutoInvoiceOnComplete bool    `mapstructure:"auto_invoice_on_complete" json:"auto_invoice_on_complete"`
}

type ConversionConfig struct {
	RequireSignedProposal bool `mapstructure:"require_signed_proposal" json:"require_signed_proposal"`
}

type ReconcileConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	GraceWindow     time.Duration `mapstructure:"grace_window" json:"grace_window"`
	Interval        time.Duration `mapstructure:"interval" json:"interval"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`
	BatchLimit      int           `mapstructure:"batch_limit" json:"batch_limit"`
}

type StripeConfig struct {
	APIBase          string        `mapstructure:"api_base" json:"api_base"`
	SecretKey        string        `mapstructure:"secret_key" json:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret" json:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance" json:"webhook_tolerance"`
}

type XeroConfig struct {
	APIBase     string `mapstructure:"api_base" json:"api_base"`
	AccessToken string `mapstructure:"access_token" json:"access_token"`
	TenantID    string `mapstructure:"tenant_id" json:"tenant_id"`
	AccountCode string `mapstructure:"account_code" json:"account_code"`
}

// RedisConfig selects the notification broker. An empty URL means events
// are only logged.
type RedisConfig struct {
	URL     string `mapstructure:"url" json:"url"`
	Channel string `mapstructure:"channel" json:"channel"`
}

// GSTRate returns the default tax rate as a decimal.
func (c Config) GSTRate() decimal.Decimal {
	return decimal.NewFromFloat(c.Billing.GSTRate)
}

// defaults lists every key. Keys must be known to viper for environment
// overrides to reach Unmarshal.
var defaults = map[string]any{
	"database.path":                      "agencyops.db",
	"server.addr":                        ":8080",
	"log.level":                          "info",
	"log.format":                         "text",
	"billing.gst_rate":                   0.10,
	"billing.auto_invoice_on_complete":   false,
	"conversion.require_signed_proposal": false,
	"reconcile.enabled":                  true,
	"reconcile.grace_window":             5 * time.Minute,
	"reconcile.interval":                 5 * time.Minute,
	"reconcile.provider_timeout":         15 * time.Second,
	"reconcile.batch_limit":              100,
	"stripe.api_base":                    "https://api.stripe.com",
	"stripe.secret_key":                  "",
	"stripe.webhook_secret":              "",
	"stripe.webhook_tolerance":           5 * time.Minute,
	"xero.api_base":                      "https://api.xero.com/api.xro/2.0",
	"xero.access_token":                  "",
	"xero.tenant_id":                     "",
	"xero.account_code":                  "",
	"redis.url":                          "",
	"redis.channel":                      "agencyops.events",
}

// Load reads configuration from path. An empty path or a missing file
// yields defaults plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults are invalid: %v", err))
	}
	return cfg
}

// Validate checks cfg against the embedded schema. Every violation is
// reported as a reason of one VALIDATION error.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err := schema.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var reasons []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		reasons = append(reasons, fmt.Sprintf("%s: %s", strings.Join(e.Path(), "."), fmt.Sprintf(format, args...)))
	}
	return apperr.Validation("invalid configuration", reasons...)
}
