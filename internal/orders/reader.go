package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// DefaultPlaceholderImage is shown when a product has no image at all.
const DefaultPlaceholderImage = "https://via.placeholder.com/300?text=No+image"

// OrderView is the read model served by the order lookup endpoint.
type OrderView struct {
	Order OrderSummary    `json:"order"`
	Items []OrderItemView `json:"items"`
}

// OrderSummary carries the order header and its payment.
type OrderSummary struct {
	ID               uuid.UUID    `json:"id"`
	UserID           *uuid.UUID   `json:"userId,omitempty"`
	Status           string       `json:"status"`
	Currency         string       `json:"currency"`
	TotalAmountCents int64        `json:"totalAmountCents"`
	TotalAmount      string       `json:"totalAmount"`
	CreatedAt        time.Time    `json:"createdAt"`
	Payment          *PaymentView `json:"payment,omitempty"`
}

// PaymentView is the settled payment of an order.
type PaymentView struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transactionId"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// OrderItemView is an order line enriched with catalog display data.
type OrderItemView struct {
	ID               uuid.UUID  `json:"id"`
	ProductVariantID uuid.UUID  `json:"productVariantId"`
	ProductID        *uuid.UUID `json:"productId,omitempty"`
	Name             string     `json:"name"`
	Image            string     `json:"image"`
	Quantity         int        `json:"quantity"`
	PriceCents       int64      `json:"priceCents"`
	Price            string     `json:"price"`
	LineTotalCents   int64      `json:"lineTotalCents"`
	LineTotal        string     `json:"lineTotal"`
	MappingSource    string     `json:"mappingSource"`
}

// Reader resolves an order by id or provider transaction and builds its view.
type Reader struct {
	repo        Repository
	catalog     imageCatalog
	baseURL     string
	placeholder string
}

// NewReader validates dependencies and returns an order reader.
func NewReader(repo Repository, cat imageCatalog, baseURL, placeholder string) (*Reader, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if strings.TrimSpace(placeholder) == "" {
		placeholder = DefaultPlaceholderImage
	}
	return &Reader{
		repo:        repo,
		catalog:     cat,
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		placeholder: placeholder,
	}, nil
}

// Get looks up ref as an order id when it parses as a UUID, otherwise as a
// provider transaction id. A miss returns (nil, nil).
func (r *Reader) Get(ctx context.Context, ref string) (*OrderView, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	var (
		order   *models.Order
		payment *models.Payment
		err     error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = r.repo.FindOrder(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return nil, nil
		}
		payment, err = r.repo.FindPaymentByOrder(ctx, order.ID)
	} else {
		payment, err = r.repo.FindPaymentByTransactionID(ctx, ref)
		if err == nil && payment != nil {
			order, err = r.repo.FindOrder(ctx, payment.OrderID)
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, nil
	}

	items, err := r.itemViews(ctx, order.Items)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: summarize(order, payment), Items: items}, nil
}

func (r *Reader) itemViews(ctx context.Context, items []models.OrderItem) ([]OrderItemView, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductVariantID)
	}
	variants, err := r.catalog.VariantsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	productIDs := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		productIDs = append(productIDs, v.ProductID)
	}
	images, err := r.catalog.ImagesForProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product images")
	}

	views := make([]OrderItemView, 0, len(items))
	for _, item := range items {
		view := OrderItemView{
			ID:               item.ID,
			ProductVariantID: item.ProductVariantID,
			Name:             "Item " + item.ProductVariantID.String()[:8],
			Image:            r.placeholder,
			Quantity:         item.Quantity,
			PriceCents:       item.PriceAtPurchaseCents,
			Price:            formatCents(item.PriceAtPurchaseCents),
			LineTotalCents:   item.LineTotalCents(),
			LineTotal:        formatCents(item.LineTotalCents()),
			MappingSource:    item.MappingSource.String(),
		}
		if variant, ok := variants[item.ProductVariantID]; ok {
			productID := variant.ProductID
			view.ProductID = &productID
			var legacy *string
			if variant.Product != nil {
				if name := strings.TrimSpace(variant.Product.Name); name != "" {
					view.Name = name
				}
				legacy = variant.Product.Image
			}
			view.Image = catalog.ResolveImage(images[productID], legacy, r.baseURL, r.placeholder)
		}
		views = append(views, view)
	}
	return views, nil
}

func summarize(order *models.Order, payment *models.Payment) OrderSummary {
	summary := OrderSummary{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           order.Status.String(),
		Currency:         enums.CurrencyUSD.String(),
		TotalAmountCents: order.TotalAmountCents,
		TotalAmount:      formatCents(order.TotalAmountCents),
		CreatedAt:        order.CreatedAt,
	}
	if payment != nil {
		summary.Payment = &PaymentView{
			Method:        string(payment.Method),
			Status:        string(payment.Status),
			TransactionID: payment.TransactionID,
			PaidAt:        payment.PaidAt,
		}
	}
	return summary
}

func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
