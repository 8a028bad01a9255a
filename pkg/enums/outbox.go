package enums

// OutboxEventType mirrors the outbox_event_type Postgres enum.
type OutboxEventType string

const (
	// EventOrderPaid is written once per reconciled checkout session.
	EventOrderPaid OutboxEventType = "order_paid"
	// EventPaymentFailed is written when Stripe reports a failed payment intent.
	EventPaymentFailed OutboxEventType = "payment_failed"
)

// OutboxAggregateType mirrors the outbox_aggregate_type Postgres enum.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
)

// Aggregate returns the aggregate an event type is keyed by. Every event type
// belongs to exactly one aggregate; ok is false for unknown types.
func (e OutboxEventType) Aggregate() (aggregate OutboxAggregateType, ok bool) {
	switch e {
	case EventOrderPaid:
		return AggregateOrder, true
	case EventPaymentFailed:
		return AggregateCheckoutSession, true
	default:
		return "", false
	}
}

// IsValid reports whether e is a known event type.
func (e OutboxEventType) IsValid() bool {
	_, ok := e.Aggregate()
	return ok
}

func (e OutboxEventType) String() string { return string(e) }

// IsValid reports whether a is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateCheckoutSession
}

func (a OutboxAggregateType) String() string { return string(a) }
