package cart

import (
	"net/http"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	cartsvc "github.com/angelmondragon/storefront-checkout/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type itemsRequest struct {
	Items []cartsvc.Item `json:"items" validate:"max=200,dive"`
}

type itemsResponse struct {
	Items []cartsvc.Item `json:"items"`
}

type clearedResponse struct {
	Cleared bool `json:"cleared"`
}

// cartAction runs one cart operation for the shopper on the request.
type cartAction func(r *http.Request, svc cartsvc.Service, shopper cartsvc.Identity) (any, error)

func serve(svc cartsvc.Service, logg *logger.Logger, action cartAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		shopper := cartsvc.Identity{
			UserID:     middleware.UserUUIDFromContext(ctx),
			GuestToken: middleware.GuestTokenFromContext(ctx),
		}
		body, err := action(r, svc, shopper)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}

// CartFetch returns the caller's persisted cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc cartsvc.Service, shopper cartsvc.Identity) (any, error) {
		items, err := svc.Pull(r.Context(), shopper)
		return itemsResponse{Items: items}, err
	})
}

// CartReplace overwrites the caller's cart with the posted items and echoes
// the normalized result.
func CartReplace(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc cartsvc.Service, shopper cartsvc.Identity) (any, error) {
		var payload itemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		items, err := svc.Push(r.Context(), shopper, payload.Items)
		return itemsResponse{Items: items}, err
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc cartsvc.Service, shopper cartsvc.Identity) (any, error) {
		return clearedResponse{Cleared: true}, svc.Clear(r.Context(), shopper)
	})
}
