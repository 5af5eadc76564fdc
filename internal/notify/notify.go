// Package notify dispatches business events ("invoice paid", "proposal
// signed") to whoever listens. Delivery is best effort: callers wrap every
// dispatch in BestEffort and a failure never fails the operation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

// Kind names a business event.
type Kind string

const (
	InvoicePaid    Kind = "invoice.paid"
	ProposalSigned Kind = "proposal.signed"
	MSASigned      Kind = "msa.signed"
)

// Event is one notification.
type Event struct {
	Kind     Kind              `json:"kind"`
	EntityID string            `json:"entity_id"`
	ClientID string            `json:"client_id,omitempty"`
	At       time.Time         `json:"at"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// EffectName is the SideEffect name BestEffort reports.
const EffectName = "notify"

// BestEffort dispatches ev and reports the attempt as a non-fatal side
// effect. A nil notifier counts as a successful no-op.
func BestEffort(ctx context.Context, logger *slog.Logger, n Notifier, ev Event) apperr.SideEffect {
	return apperr.Attempt(logger, EffectName, func() error {
		if n == nil {
			return nil
		}
		return n.Notify(ctx, ev)
	}, "kind", ev.Kind, "entity_id", ev.EntityID)
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier from a redis:// URL.
func NewRedisNotifier(url, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisNotifierFromClient(redis.NewClient(opts), channel), nil
}

// NewRedisNotifierFromClient wraps an existing client.
func NewRedisNotifierFromClient(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes ev.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close closes the underlying client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier writes events to a logger. Used when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs ev at info level.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "kind", ev.Kind, "entity_id", ev.EntityID, "client_id", ev.ClientID)
	return nil
}

// Recorder keeps every event it is given. Err, when set, is returned from
// Notify after the event is recorded, so a failed delivery is still visible.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Notify records ev.
func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
