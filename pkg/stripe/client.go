package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Environment is the Stripe account mode a key belongs to.
type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentLive Environment = "live"

	appName = "storefront-backend"
)

var keyPrefixes = map[Environment][]string{
	EnvironmentTest: {"sk_test_", "rk_test_"},
	EnvironmentLive: {"sk_live_", "rk_live_"},
}

var (
	ErrAPIKeyRequired        = errors.New("stripe api key is required")
	ErrSigningSecretRequired = errors.New("stripe webhook signing secret is required")
)

// Client holds the process-wide Stripe setup: the API key is installed on the
// stripe-go package and the webhook signing secret is kept for verification.
type Client struct {
	env           Environment
	signingSecret string
}

// NewClient validates the key against the configured environment, so a live
// key can never be used from a test deployment or the reverse, then installs
// it globally for the stripe-go resource packages.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := parseEnvironment(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if !keyMatches(env, apiKey) {
		return nil, fmt.Errorf("stripe %s environment requires a key prefixed %s", env, strings.Join(keyPrefixes[env], " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrSigningSecretRequired
	}

	stripe.Key = apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	if logg != nil {
		stripe.DefaultLeveledLogger = leveledLogger{logg: logg}
		logg.Info(logg.WithField(ctx, "stripe_env", string(env)), "stripe.configured")
	}
	return &Client{env: env, signingSecret: secret}, nil
}

// Environment reports the validated Stripe environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.env)
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func parseEnvironment(raw string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(raw)))
	if env == "" {
		return EnvironmentTest, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", EnvironmentTest, EnvironmentLive, raw)
	}
	return env, nil
}

func keyMatches(env Environment, key string) bool {
	for _, prefix := range keyPrefixes[env] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
