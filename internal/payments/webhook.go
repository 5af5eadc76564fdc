package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// DefaultTolerance is how old a webhook timestamp may be.
const DefaultTolerance = webhook.DefaultTolerance

// SignatureHeader is the header the processor signs webhooks in.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrNoSecret means no signing secret is configured, so no event can be
	// trusted.
	ErrNoSecret = errors.New("webhook signing secret not configured")

	// ErrMissingSignature means the header had no usable signature.
	ErrMissingSignature = errors.New("webhook signature missing")

	// ErrInvalidSignature means no v1 signature matched the payload.
	ErrInvalidSignature = errors.New("webhook signature invalid")

	// ErrTimestampOutOfRange means the signed timestamp is too old.
	ErrTimestampOutOfRange = errors.New("webhook timestamp outside tolerance")
)

// ParseWebhook verifies header against payload and decodes the event.
//
// Any v1 signature in the header may match, so secrets can be rolled.
// tolerance <= 0 disables the timestamp check. An empty secret rejects
// every event.
func ParseWebhook(payload []byte, header, secret string, tolerance time.Duration) (Event, error) {
	if secret == "" {
		return Event{}, ErrNoSecret
	}

	var err error
	if tolerance > 0 {
		err = webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance)
	} else {
		err = webhook.ValidatePayloadIgnoringTolerance(payload, header, secret)
	}
	if err != nil {
		return Event{}, signatureError(err)
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("decode webhook event: missing type")
	}
	return ev, nil
}

// SignPayload returns a signature header for payload at t. The processor
// does this on its side; it is exported for tests and local tooling.
func SignPayload(payload []byte, secret string, t time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: t,
	})
	return signed.Header
}

func signatureError(err error) error {
	switch {
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
		return fmt.Errorf("%w: %v", ErrMissingSignature, err)
	case errors.Is(err, webhook.ErrTooOld):
		return fmt.Errorf("%w: %v", ErrTimestampOutOfRange, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}
