package orders

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	internalorders "github.com/angelmondragon/storefront-checkout/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// maxRefLength covers UUIDs and Stripe checkout session ids.
const maxRefLength = 255

type orderReader interface {
	Get(ctx context.Context, ref string) (*internalorders.OrderView, error)
}

type lookupResponse struct {
	Found bool                           `json:"found"`
	Order *internalorders.OrderSummary   `json:"order,omitempty"`
	Items []internalorders.OrderItemView `json:"items,omitempty"`
}

// Lookup resolves {ref} as an order id or a checkout session id. A miss is a
// normal 200 response with found=false.
func Lookup(reader orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order reader unavailable"))
			return
		}

		ref := validators.SanitizeString(chi.URLParam(r, "ref"), maxRefLength)
		if ref == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference required"))
			return
		}

		view, err := reader.Get(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view == nil {
			responses.WriteSuccess(w, lookupResponse{Found: false})
			return
		}

		items := view.Items
		if items == nil {
			items = []internalorders.OrderItemView{}
		}
		responses.WriteSuccess(w, lookupResponse{Found: true, Order: &view.Order, Items: items})
	}
}
