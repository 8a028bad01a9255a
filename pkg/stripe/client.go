package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	defaultTimeout = 15 * time.Second
	networkRetries = 2

	// ExpandLineItemProducts is the expansion needed to map session lines back to catalog variants.
	ExpandLineItemProducts = "line_items.data.price.product"
)

// keyPrefixes lists the secret and restricted key prefixes each environment accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

var errNotInitialized = errors.New("stripe client not initialized")

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Client talks to Stripe hosted checkout with its own key and backend, so
// nothing is set on the stripe package globals.
type Client struct {
	environment   string
	signingSecret string
	timeout       time.Duration
	sessions      sessionAPI
}

// NewClient checks the key against the configured environment. Every provider
// call is bounded by timeout (15s when zero).
func NewClient(ctx context.Context, cfg config.StripeConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q must be test or live", env)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	signingSecret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case signingSecret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(apiKey, prefixes):
		return nil, fmt.Errorf("stripe %s environment requires a %s key", env, strings.Join(prefixes, "/"))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(networkRetries),
	})
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.ready")
	}
	return &Client{
		environment:   env,
		signingSecret: signingSecret,
		timeout:       timeout,
		sessions:      session.Client{B: backend, Key: apiKey},
	}, nil
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c == nil || c.sessions == nil {
		return nil, errNotInitialized
	}
	if params == nil {
		return nil, errors.New("checkout session params required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	params.Context = ctx
	return c.sessions.New(params)
}

// GetCheckoutSession fetches a session with its line items and their products expanded.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if c == nil || c.sessions == nil {
		return nil, errNotInitialized
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkout session id required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand(ExpandLineItemProducts)
	params.Context = ctx
	return c.sessions.Get(id, params)
}

// ProviderMessage extracts the human readable message from a Stripe API error.
func ProviderMessage(err error) string {
	if err == nil {
		return ""
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && strings.TrimSpace(stripeErr.Msg) != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
