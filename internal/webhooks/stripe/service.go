package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
)

type orderReconciler interface {
	Reconcile(ctx context.Context, transactionID string) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Reconciler        orderReconciler
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Metrics           *metrics.CheckoutMetrics
	Logger            *logger.Logger
}

// Service routes verified Stripe events to the order pipeline.
type Service struct {
	reconciler orderReconciler
	outbox     outboxPublisher
	txRunner   txRunner
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order reconciler required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		reconciler: params.Reconciler,
		outbox:     params.Outbox,
		txRunner:   params.TransactionRunner,
		metrics:    params.Metrics,
		logg:       logg,
	}, nil
}

// HandleEvent dispatches on event type. Unknown types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": eventType})

	var err error
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = s.handleSessionCompleted(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		err = s.handlePaymentFailed(ctx, event)
	default:
		s.metrics.IncWebhookEvent(eventType, outcomeIgnored)
		return nil
	}

	if err != nil {
		s.metrics.IncWebhookEvent(eventType, outcomeFailed)
		return err
	}
	s.metrics.IncWebhookEvent(eventType, outcomeProcessed)
	return nil
}

func (s *Service) handleSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if strings.TrimSpace(session.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	_, err := s.reconciler.Reconcile(ctx, session.ID)
	return err
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}

	failed := payloads.PaymentFailedEvent{
		PaymentIntentID: intent.ID,
		AmountCents:     intent.Amount,
		Currency:        string(intent.Currency),
	}
	if failed.Currency == "" {
		failed.Currency = enums.CurrencyUSD.String()
	}
	if intent.LastPaymentError != nil {
		failed.FailureCode = string(intent.LastPaymentError.Code)
		failed.FailureMessage = intent.LastPaymentError.Msg
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": intent.ID,
		"failure_code":      failed.FailureCode,
		"failure_message":   failed.FailureMessage,
	}), "payment.failed")

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.PaymentFailed(PaymentAggregateID(intent.ID), failed))
	})
}

// PaymentAggregateID derives a stable aggregate id from a provider object id.
func PaymentAggregateID(providerID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("stripe:"+providerID))
}
