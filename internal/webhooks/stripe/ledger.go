package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// EventState is what the ledger knows about an event id at claim time.
type EventState int

const (
	// EventClaimed means the caller now owns the event and must Complete or Release it.
	EventClaimed EventState = iota
	// EventInFlight means another delivery holds the lease.
	EventInFlight
	// EventDone means a previous delivery finished successfully.
	EventDone
)

func (s EventState) String() string {
	switch s {
	case EventClaimed:
		return "claimed"
	case EventInFlight:
		return "in_flight"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// LedgerConfig tunes an EventLedger. Lease bounds how long a crashed delivery
// blocks redeliveries; Retention is how long a finished event is remembered.
type LedgerConfig struct {
	Lease     time.Duration
	Retention time.Duration
}

// EventLedger tracks Stripe event ids across deliveries. A delivery first
// takes a short processing lease, and only a successful one leaves a done
// marker behind. Order and payment uniqueness live in the database; the
// ledger only spares repeat work and keeps concurrent duplicates from being
// acknowledged early.
type EventLedger struct {
	store     redis.KV
	lease     time.Duration
	retention time.Duration
}

func NewEventLedger(store redis.KV, cfg LedgerConfig) (*EventLedger, error) {
	if store == nil {
		return nil, errors.New("event ledger store is required")
	}
	if cfg.Lease <= 0 {
		return nil, errors.New("lease must be positive")
	}
	if cfg.Retention < cfg.Lease {
		return nil, errors.New("retention must cover the lease")
	}
	return &EventLedger{
		store:     store,
		lease:     cfg.Lease,
		retention: cfg.Retention,
	}, nil
}

// Claim tries to take the processing lease for eventID.
func (l *EventLedger) Claim(ctx context.Context, eventID string) (EventState, error) {
	key, err := l.key(eventID)
	if err != nil {
		return EventInFlight, err
	}
	// Two rounds: the marker can expire between SetNX and Get.
	for range 2 {
		set, err := l.store.SetNX(ctx, key, markerProcessing, l.lease)
		if err != nil {
			return EventInFlight, fmt.Errorf("claim stripe event: %w", err)
		}
		if set {
			return EventClaimed, nil
		}

		marker, err := l.store.Get(ctx, key)
		if err != nil && !redis.IsNil(err) {
			return EventInFlight, fmt.Errorf("read stripe event marker: %w", err)
		}
		switch marker {
		case markerDone:
			return EventDone, nil
		case markerProcessing:
			return EventInFlight, nil
		}
	}
	return EventInFlight, nil
}

// Complete turns the lease into a done marker kept for the retention window.
func (l *EventLedger) Complete(ctx context.Context, eventID string) error {
	key, err := l.key(eventID)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, key, markerDone, l.retention); err != nil {
		return fmt.Errorf("mark stripe event done: %w", err)
	}
	return nil
}

// Release drops the lease so the provider's retry is processed.
func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	key, err := l.key(eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *EventLedger) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return redis.Key(redis.SpaceStripeEvent, eventID), nil
}
