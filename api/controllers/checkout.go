package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-checkout/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// checkoutRequest is optional; its items are only used when the persisted
// cart has nothing resolvable.
type checkoutRequest struct {
	Items []cart.Item `json:"items" validate:"max=200,dive"`
}

// Checkout creates a hosted payment session for the signed-in shopper.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if _, err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), checkoutsvc.Input{
			UserID:        middleware.UserUUIDFromContext(r.Context()),
			GuestToken:    middleware.GuestTokenFromContext(r.Context()),
			FallbackItems: payload.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, session)
	}
}
