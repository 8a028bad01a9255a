package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

// ErrPoison marks a row that can never be delivered as stored. The relay parks
// such rows instead of retrying them.
var ErrPoison = errors.New("outbox: undeliverable row")

// Poison wraps err with ErrPoison.
func Poison(err error) error {
	return fmt.Errorf("%w: %w", ErrPoison, err)
}

// IsPoison reports whether err was raised for an undeliverable row.
func IsPoison(err error) bool {
	return errors.Is(err, ErrPoison)
}

// ResolvedEvent is an outbox row decoded into its typed storefront payload.
// Exactly one of OrderPaid and PaymentFailed is set.
type ResolvedEvent struct {
	Row           models.OutboxEvent
	Topic         string
	Envelope      outbox.PayloadEnvelope
	OrderPaid     *payloads.OrderPaidEvent
	PaymentFailed *payloads.PaymentFailedEvent
}

// Attributes are the Pub/Sub message attributes consumers filter on.
func (e *ResolvedEvent) Attributes() map[string]string {
	attrs := map[string]string{
		"event_id":       e.Envelope.EventID,
		"event_type":     e.Row.EventType.String(),
		"aggregate_type": e.Row.AggregateType.String(),
		"aggregate_id":   e.Row.AggregateID.String(),
		"schema_version": strconv.Itoa(e.Envelope.Version),
	}
	switch {
	case e.OrderPaid != nil:
		attrs["order_id"] = e.OrderPaid.OrderID.String()
		attrs["transaction_id"] = e.OrderPaid.TransactionID
		attrs["currency"] = e.OrderPaid.Currency
	case e.PaymentFailed != nil:
		attrs["payment_intent_id"] = e.PaymentFailed.PaymentIntentID
		if e.PaymentFailed.FailureCode != "" {
			attrs["failure_code"] = e.PaymentFailed.FailureCode
		}
	}
	return attrs
}

// EventRegistry routes the storefront's outbox events to their topic.
type EventRegistry struct {
	orderEventsTopic string
}

// NewEventRegistry routes every event to the configured order events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrderEventsTopic)
	if topic == "" {
		return nil, errors.New("order events topic is required")
	}
	return &EventRegistry{orderEventsTopic: topic}, nil
}

// Resolve checks the row against its event type and decodes the payload. Every
// error it returns is poison.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	aggregate, ok := row.EventType.Aggregate()
	if !ok {
		return nil, Poison(fmt.Errorf("unsupported event type %q", row.EventType))
	}
	if row.AggregateType != aggregate {
		return nil, Poison(fmt.Errorf("%s rows belong to %s, got %s", row.EventType, aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Poison(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, Poison(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Poison(fmt.Errorf("%s envelope has no data", row.EventType))
	}

	resolved := &ResolvedEvent{Row: row, Topic: r.orderEventsTopic, Envelope: envelope}
	var err error
	switch row.EventType {
	case enums.EventOrderPaid:
		resolved.OrderPaid = &payloads.OrderPaidEvent{}
		err = json.Unmarshal(data, resolved.OrderPaid)
		if err == nil && resolved.OrderPaid.OrderID != row.AggregateID {
			err = errors.New("order_id does not match aggregate_id")
		}
	case enums.EventPaymentFailed:
		resolved.PaymentFailed = &payloads.PaymentFailedEvent{}
		err = json.Unmarshal(data, resolved.PaymentFailed)
		if err == nil && resolved.PaymentFailed.PaymentIntentID == "" {
			err = errors.New("payment_intent_id is required")
		}
	}
	if err != nil {
		return nil, Poison(fmt.Errorf("decode %s payload: %w", row.EventType, err))
	}
	return resolved, nil
}
