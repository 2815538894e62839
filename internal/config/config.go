package config

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"
)

// Config represents the configuration of the orchestrator.
type Config struct {
	HTTPAddr  string `help:"Address:port of the HTTP API" env:"SHOPKEEPER_HTTP_ADDR" default:":3001"`
	LogLevel  string `help:"Log level: error, warn, info (default), debug" env:"SHOPKEEPER_LOG_LEVEL" default:"info"`
	LogFormat string `help:"Log format: auto, console, json" env:"SHOPKEEPER_LOG_FORMAT" default:"auto"`

	RateLimit  int           `help:"Mutating requests allowed per client per window" env:"SHOPKEEPER_RATE_LIMIT" default:"10"`
	RateWindow time.Duration `help:"Length of the rate limit window" env:"SHOPKEEPER_RATE_WINDOW" default:"60s"`
	TrustProxy bool          `help:"Key rate limits on the first X-Forwarded-For address" env:"SHOPKEEPER_TRUST_PROXY"`

	MaxStores int `help:"Maximum number of concurrent stores" env:"SHOPKEEPER_MAX_STORES" default:"50"`

	InstallTimeout   time.Duration `help:"Timeout for a store install" env:"SHOPKEEPER_INSTALL_TIMEOUT" default:"5m"`
	UninstallTimeout time.Duration `help:"Timeout for a store teardown" env:"SHOPKEEPER_UNINSTALL_TIMEOUT" default:"5m"`
	ReadinessTimeout time.Duration `help:"Timeout for a single namespace readiness query" env:"SHOPKEEPER_READINESS_TIMEOUT" default:"5s"`

	Chart              string `help:"Chart reference passed to helm install" env:"SHOPKEEPER_CHART" default:"charts/medusa-store"`
	Values             string `help:"Values file passed to helm install" env:"SHOPKEEPER_VALUES" default:"values-local.yaml"`
	HelmBin            string `help:"Path to the helm binary" env:"SHOPKEEPER_HELM_BIN" default:"helm"`
	Kubeconfig         string `help:"Path to a kubeconfig; in-cluster config is tried when empty" env:"KUBECONFIG"`
	StoreDomain        string `help:"Domain used to build store URLs" env:"SHOPKEEPER_STORE_DOMAIN" default:"local.gd"`
	ReapFailedInstalls bool   `help:"Tear down residue left by a failed install" env:"SHOPKEEPER_REAP_FAILED_INSTALLS"`

	AuditFile   string `help:"Append-only audit log file" env:"SHOPKEEPER_AUDIT_FILE" default:"audit.log"`
	DatabaseURL string `help:"Postgres connection string for the audit mirror (disabled when empty)" env:"DATABASE_URL"`
}

// Parse parses the config from environment vars and command line arguments.
// The order of precedence is:
//  1. Command line arguments
//  2. Environment variables
//  3. Defaults
func Parse(args []string) (*Config, error) {
	config := &Config{}

	parser, err := kong.New(config,
		kong.Name("shopkeeper"),
		kong.Description("Provisions and tears down per-tenant stores on Kubernetes."),
	)
	if err != nil {
		return nil, err
	}

	if _, err = parser.Parse(args); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.RateLimit < 1 {
		return fmt.Errorf("rate-limit must be at least 1, got %d", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate-window must be positive, got %s", c.RateWindow)
	}
	if c.MaxStores < 1 {
		return fmt.Errorf("max-stores must be at least 1, got %d", c.MaxStores)
	}
	for name, d := range map[string]time.Duration{
		"install-timeout":   c.InstallTimeout,
		"uninstall-timeout": c.UninstallTimeout,
		"readiness-timeout": c.ReadinessTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}
