package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

// EnvelopeVersion is stamped on every envelope written by this build.
const EnvelopeVersion = 1

// DomainEvent is a storefront fact waiting to be written next to the state
// change that produced it. The aggregate type follows from Type.
type DomainEvent struct {
	Type        enums.OutboxEventType
	AggregateID uuid.UUID
	Actor       *ActorRef
	OccurredAt  time.Time
	Data        any
}

// OrderPaid describes a freshly reconciled order.
func OrderPaid(paid payloads.OrderPaidEvent, actor *ActorRef) DomainEvent {
	return DomainEvent{
		Type:        enums.EventOrderPaid,
		AggregateID: paid.OrderID,
		Actor:       actor,
		OccurredAt:  paid.PaidAt,
		Data:        paid,
	}
}

// PaymentFailed describes a failed payment intent. aggregateID must be stable
// per intent so redeliveries land on the same key.
func PaymentFailed(aggregateID uuid.UUID, failed payloads.PaymentFailedEvent) DomainEvent {
	return DomainEvent{
		Type:        enums.EventPaymentFailed,
		AggregateID: aggregateID,
		Data:        failed,
	}
}

// Writer turns domain events into outbox rows.
type Writer struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Writer{store: store, logg: logg, now: time.Now}
}

// Emit writes event inside tx, so it commits or rolls back with the caller's
// order or payment change.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, envelope, err := w.row(event)
	if err != nil {
		return err
	}
	if err := w.store.Append(ctx, tx, row); err != nil {
		return fmt.Errorf("append %s event: %w", event.Type, err)
	}
	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   event.Type.String(),
		"aggregate_id": event.AggregateID.String(),
	}), "outbox.event_queued")
	return nil
}

func (w *Writer) row(event DomainEvent) (*models.OutboxEvent, PayloadEnvelope, error) {
	aggregate, ok := event.Type.Aggregate()
	if !ok {
		return nil, PayloadEnvelope{}, fmt.Errorf("outbox: unknown event type %q", event.Type)
	}
	if event.AggregateID == uuid.Nil {
		return nil, PayloadEnvelope{}, fmt.Errorf("outbox: %s event needs an aggregate id", event.Type)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.Type, err)
	}

	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = w.now()
	}
	envelope := PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, PayloadEnvelope{}, fmt.Errorf("encode %s envelope: %w", event.Type, err)
	}
	return &models.OutboxEvent{
		EventType:     event.Type,
		AggregateType: aggregate,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, envelope, nil
}
