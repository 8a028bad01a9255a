package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	pkgstripe "github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

const (
	// MetadataUserID and MetadataGuestSession tie a provider session back to its cart.
	MetadataUserID       = "userId"
	MetadataGuestSession = "guestSession"
	// MetadataVariantID rides on each line's product data.
	MetadataVariantID = "productVariantId"

	defaultItemName = "Item"

	outcomeCreated       = "created"
	outcomeEmptyCart     = "empty_cart"
	outcomeUnauthorized  = "unauthorized"
	outcomeProviderError = "provider_error"
)

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type cartMerger interface {
	MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, guestToken string) error
}

type cartReader interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
}

type catalogReader interface {
	VariantsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	ImagesForProducts(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID][]models.ProductImage, error)
}

// Service builds hosted checkout sessions from the shopper's cart.
type Service interface {
	CreateSession(ctx context.Context, input Input) (*Session, error)
}

// Input identifies the shopper. FallbackItems are the client-held items used
// when the persisted cart has nothing resolvable.
type Input struct {
	UserID        *uuid.UUID
	GuestToken    string
	FallbackItems []cart.Item
}

// Session is the provider redirect target.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// LineItem is one provider line, priced in cents.
type LineItem struct {
	VariantID       *uuid.UUID
	Name            string
	UnitAmountCents int64
	Quantity        int64
	Image           string
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Provider sessionCreator
	Carts    cartMerger
	CartRows cartReader
	Catalog  catalogReader
	BaseURL  string
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
}

type service struct {
	provider sessionCreator
	carts    cartMerger
	cartRows cartReader
	catalog  catalogReader
	baseURL  string
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
}

// NewService validates dependencies and returns a checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("checkout provider required")
	}
	if params.Carts == nil || params.CartRows == nil {
		return nil, fmt.Errorf("cart dependencies required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(params.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		provider: params.Provider,
		carts:    params.Carts,
		cartRows: params.CartRows,
		catalog:  params.Catalog,
		baseURL:  baseURL,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

// CreateSession merges any guest cart into the user's, prices the items, and
// opens a provider session.
func (s *service) CreateSession(ctx context.Context, input Input) (*Session, error) {
	if input.UserID == nil {
		s.metrics.IncCheckoutSession(outcomeUnauthorized)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID := *input.UserID
	guestToken := strings.TrimSpace(input.GuestToken)
	ctx = s.logg.WithUserID(ctx, userID.String())

	if guestToken != "" {
		if err := s.carts.MergeGuestIntoUser(ctx, userID, guestToken); err != nil {
			return nil, err
		}
	}

	lines, err := s.linesFromCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		lines = s.linesFromItems(input.FallbackItems)
		if len(lines) > 0 {
			s.logg.Warn(ctx, "checkout.using_client_items")
		}
	}
	if len(lines) == 0 {
		s.metrics.IncCheckoutSession(outcomeEmptyCart)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	params := BuildSessionParams(lines, s.baseURL, userID, guestToken)
	started := time.Now()
	created, err := s.provider.CreateCheckoutSession(ctx, params)
	s.metrics.ObserveProviderCall("checkout_session_create", time.Since(started))
	if err != nil {
		s.metrics.IncCheckoutSession(outcomeProviderError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "checkout creation failed: "+pkgstripe.ProviderMessage(err))
	}

	s.metrics.IncCheckoutSession(outcomeCreated)
	s.logg.Info(s.logg.WithTransactionID(ctx, created.ID), "checkout.session_created")
	return &Session{ID: created.ID, URL: created.URL}, nil
}

// linesFromCart prices the persisted cart rows at current catalog prices.
// Rows without a variant, or whose variant is gone, are skipped.
func (s *service) linesFromCart(ctx context.Context, userID uuid.UUID) ([]LineItem, error) {
	userCart, err := s.cartRows.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if userCart == nil || len(userCart.Items) == 0 {
		return nil, nil
	}

	variantIDs := make([]uuid.UUID, 0, len(userCart.Items))
	for _, row := range userCart.Items {
		if row.ProductVariantID != nil {
			variantIDs = append(variantIDs, *row.ProductVariantID)
		}
	}
	variants, err := s.catalog.VariantsByIDs(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}

	productIDs := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		productIDs = append(productIDs, v.ProductID)
	}
	images, err := s.catalog.ImagesForProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product images")
	}

	lines := make([]LineItem, 0, len(userCart.Items))
	for _, row := range userCart.Items {
		if row.ProductVariantID == nil {
			continue
		}
		variant, ok := variants[*row.ProductVariantID]
		if !ok {
			continue
		}
		line := LineItem{
			VariantID:       &variant.ID,
			UnitAmountCents: toCents(variant.Price),
			Quantity:        int64(row.Quantity),
		}
		var legacy *string
		if variant.Product != nil {
			line.Name = variant.Product.Name
			legacy = variant.Product.Image
		}
		line.Image = catalog.ResolveImage(images[variant.ProductID], legacy, s.baseURL, "")
		lines = append(lines, line)
	}
	return lines, nil
}

// linesFromItems trusts the client-held prices.
func (s *service) linesFromItems(items []cart.Item) []LineItem {
	normalized := cart.Normalize(items)
	lines := make([]LineItem, 0, len(normalized))
	for _, item := range normalized {
		lines = append(lines, LineItem{
			VariantID:       item.VariantID(),
			Name:            item.Name,
			UnitAmountCents: item.PriceCents(),
			Quantity:        int64(item.Quantity),
			Image:           catalog.AbsoluteURL(s.baseURL, item.Image),
		})
	}
	return lines
}

// BuildSessionParams renders provider parameters for a payment-mode session.
func BuildSessionParams(lines []LineItem, baseURL string, userID uuid.UUID, guestToken string) *stripe.CheckoutSessionParams {
	baseURL = strings.TrimRight(baseURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(baseURL + "/cart"),
		Metadata:           map[string]string{MetadataUserID: userID.String()},
	}
	if guestToken != "" {
		params.Metadata[MetadataGuestSession] = guestToken
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			name = defaultItemName
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(name),
		}
		if line.Image != "" {
			product.Images = stripe.StringSlice([]string{line.Image})
		}
		if line.VariantID != nil {
			product.Metadata = map[string]string{MetadataVariantID: line.VariantID.String()}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(line.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(enums.CurrencyUSD.String()),
				UnitAmount:  stripe.Int64(line.UnitAmountCents),
				ProductData: product,
			},
		})
	}
	return params
}

func toCents(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}
