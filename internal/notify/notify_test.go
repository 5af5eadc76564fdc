package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestEffort_SwallowsFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := &Recorder{Err: errors.New("broker down")}

	effect := BestEffort(context.Background(), logger, rec, Event{Kind: InvoicePaid, EntityID: "inv-1"})

	assert.True(t, effect.Failed())
	assert.True(t, effect.NonFatal)
	assert.Equal(t, EffectName, effect.Name)
	assert.Equal(t, 1, rec.Count(InvoicePaid))
	assert.Contains(t, logs.String(), "broker down")
	assert.Contains(t, logs.String(), "entity_id=inv-1")
}

func TestBestEffort_NilNotifier(t *testing.T) {
	effect := BestEffort(context.Background(), nil, nil, Event{Kind: ProposalSigned})
	assert.False(t, effect.Failed())
}

func TestRecorder_Events(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Notify(context.Background(), Event{Kind: InvoicePaid, EntityID: "a"}))
	require.NoError(t, rec.Notify(context.Background(), Event{Kind: ProposalSigned, EntityID: "b"}))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].EntityID)
	assert.Equal(t, 1, rec.Count(ProposalSigned))
}

func TestLogNotifier(t *testing.T) {
	var logs bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	require.NoError(t, n.Notify(context.Background(), Event{Kind: InvoicePaid, EntityID: "inv-1"}))
	assert.Contains(t, logs.String(), "kind=invoice.paid")
}

func TestRedisNotifier_UnreachableBroker(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	n := NewRedisNotifierFromClient(client, "agencyops.events")
	defer n.Close()

	err := n.Notify(context.Background(), Event{Kind: InvoicePaid, EntityID: "inv-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish invoice.paid")

	effect := BestEffort(context.Background(), nil, n, Event{Kind: InvoicePaid, EntityID: "inv-1"})
	assert.True(t, effect.Failed())
}

func TestNewRedisNotifier_BadURL(t *testing.T) {
	_, err := NewRedisNotifier("http://not-redis", "ch")
	assert.Error(t, err)

	n, err := NewRedisNotifier("redis://localhost:6379/0", "ch")
	require.NoError(t, err)
	assert.NoError(t, n.Close())
}
