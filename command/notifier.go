package command

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Notifier dispatches a keyspace notification payload for a calendar
// key (spec §6): exactly the strings "cal_set", "evt_set:<uid>
// LAST-MODIFIED:<ts>", etc. Publishing is a side effect of a
// successful mutation; a failure to notify never unwinds the mutation
// itself (notification is best-effort broadcast, not part of the
// mutation's transactional boundary).
type Notifier interface {
	Notify(ctx context.Context, calendarKey, payload string) error
}

// NopNotifier discards every notification. The zero value is ready to
// use; Engine falls back to it when constructed without a Notifier.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string) error { return nil }

// WatermillNotifier publishes notifications over a watermill
// message.Publisher — a gochannel.GoChannel for in-process delivery,
// or a watermill-nats publisher for cross-process keyspace
// notification fanout. Every calendar key is its own topic, mirroring
// a key-value store's per-key keyspace-notification channel.
type WatermillNotifier struct {
	pub message.Publisher
}

// NewWatermillNotifier wraps an existing watermill publisher.
func NewWatermillNotifier(pub message.Publisher) *WatermillNotifier {
	return &WatermillNotifier{pub: pub}
}

// NewInProcessNotifier builds a Notifier backed by an in-process
// gochannel pub/sub, the default when no external broker is
// configured.
func NewInProcessNotifier() (*WatermillNotifier, *gochannel.GoChannel) {
	gc := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return NewWatermillNotifier(gc), gc
}

func (n *WatermillNotifier) Notify(_ context.Context, calendarKey, payload string) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	if err := n.pub.Publish(calendarKey, msg); err != nil {
		return fmt.Errorf("publish keyspace notification: %w", err)
	}
	return nil
}

// BreakerNotifier wraps a Notifier with a circuit breaker (spec §9's
// "no internal worker threads" notwithstanding, notification delivery
// to an external broker is the one place the engine talks to a
// possibly-unavailable collaborator, so it is the one place resilience
// patterns apply).
type BreakerNotifier struct {
	inner   Notifier
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerNotifier wraps inner with breaker settings tuned for a
// notification sink: a handful of consecutive failures opens the
// circuit, after which notifications are dropped (never erroring back
// to the mutation) until the breaker's timeout allows a retry.
func NewBreakerNotifier(inner Notifier, name string) *BreakerNotifier {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerNotifier{inner: inner, breaker: gobreaker.NewCircuitBreaker[any](settings)}
}

func (n *BreakerNotifier) Notify(ctx context.Context, calendarKey, payload string) error {
	_, err := n.breaker.Execute(func() (any, error) {
		return nil, n.inner.Notify(ctx, calendarKey, payload)
	})
	if err != nil {
		notifyFailuresTotal.Inc()
	}
	return err
}
