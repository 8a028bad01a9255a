package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is emitted once per reconciled checkout session.
type OrderPaidEvent struct {
	OrderID          uuid.UUID  `json:"order_id"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	TransactionID    string     `json:"transaction_id"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	Currency         string     `json:"currency"`
	ItemCount        int        `json:"item_count"`
	PaidAt           time.Time  `json:"paid_at"`
}

// PaymentFailedEvent surfaces a failed payment intent so downstream tooling can follow up.
type PaymentFailedEvent struct {
	PaymentIntentID string `json:"payment_intent_id"`
	FailureCode     string `json:"failure_code,omitempty"`
	FailureMessage  string `json:"failure_message,omitempty"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}
