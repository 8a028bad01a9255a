package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-checkout/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// MaxBodyBytes bounds the webhook payload read before verification.
const MaxBodyBytes = int64(65536)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventLedger tracks Stripe event ids across deliveries.
type EventLedger interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.EventState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// SigningSecretSource provides the webhook signing secret.
type SigningSecretSource interface {
	SigningSecret() string
}

type receipt struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies the Stripe signature over the raw body and hands the
// event to the router. Only finished events are acknowledged as duplicates; a
// redelivery racing an unfinished one gets a 409 so the provider retries it.
// A nil ledger disables event-id deduplication.
func StripeWebhook(svc StripeWebhookService, client SigningSecretSource, ledger EventLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil || strings.TrimSpace(client.SigningSecret()) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook signing secret not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		if ledger != nil {
			state, err := ledger.Claim(ctx, event.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
				return
			}
			switch state {
			case stripewebhook.EventDone:
				if logg != nil {
					logg.Info(ctx, "stripe.event_duplicate")
				}
				responses.WriteSuccess(w, receipt{Received: true})
				return
			case stripewebhook.EventInFlight:
				if logg != nil {
					logg.Warn(ctx, "stripe.event_in_flight")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed"))
				return
			}
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if ledger != nil {
				if relErr := ledger.Release(ctx, event.ID); relErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "stripe.event_release_failed")
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if ledger != nil {
			if err := ledger.Complete(ctx, event.ID); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.event_complete_failed")
			}
		}

		if logg != nil {
			logg.Info(ctx, "stripe.event_processed")
		}
		responses.WriteSuccess(w, receipt{Received: true})
	}
}
