package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

// DefaultBaseURL is the processor's production API.
const DefaultBaseURL = stripe.APIURL

// APIError is a non-2xx response from the processor.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payments api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("payments api: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the processor.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	http   *http.Client
	logger *slog.Logger
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *clientConfig) { c.http = h }
}

// WithLogger routes the SDK's own diagnostics to logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// Client reads checkout sessions and payment intents.
type Client struct {
	api *client.API
}

// NewClient creates a client. An empty baseURL means DefaultBaseURL.
// The SDK's own retries are off; the sweep retries on its next run.
func NewClient(baseURL, secretKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := clientConfig{
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimRight(baseURL, "/")),
		HTTPClient:        cfg.http,
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
		LeveledLogger:     slogLeveled{cfg.logger},
	})

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{api: api}
}

// FetchCheckoutSession returns the checkout session with the given id.
func (c *Client) FetchCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("fetch checkout session %s: %w", id, apiError(err))
	}
	return sessionFromStripe(s), nil
}

// FetchPaymentIntent returns the payment intent with the given id.
func (c *Client) FetchPaymentIntent(ctx context.Context, id string) (PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	p, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("fetch payment intent %s: %w", id, apiError(err))
	}
	return intentFromStripe(p), nil
}

// apiError converts an SDK error response into an APIError. Transport
// errors pass through unchanged.
func apiError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &APIError{StatusCode: se.HTTPStatusCode, Type: string(se.Type), Message: se.Msg}
}

func sessionFromStripe(s *stripe.CheckoutSession) CheckoutSession {
	out := CheckoutSession{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntent = domain.Ref(s.PaymentIntent.ID)
	}
	return out
}

func intentFromStripe(p *stripe.PaymentIntent) PaymentIntent {
	out := PaymentIntent{
		ID:             p.ID,
		Status:         string(p.Status),
		Amount:         p.Amount,
		AmountReceived: p.AmountReceived,
		Currency:       string(p.Currency),
		Metadata:       p.Metadata,
	}
	if p.LastPaymentError != nil {
		out.LastPaymentError = &PaymentError{
			Code:    string(p.LastPaymentError.Code),
			Message: p.LastPaymentError.Msg,
		}
	}
	return out
}

// slogLeveled adapts slog to the SDK's logger interface.
type slogLeveled struct {
	logger *slog.Logger
}

func (l slogLeveled) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l slogLeveled) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l slogLeveled) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l slogLeveled) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
