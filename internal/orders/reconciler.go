package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

const (
	uniquePaymentTransaction = "ux_payments_transaction_id"

	metadataUserID       = "userId"
	metadataGuestSession = "guestSession"

	resultCreated   = "created"
	resultDuplicate = "duplicate"
	resultRaceLost  = "race_lost"
)

// ReconcilerParams wires the order reconciler.
type ReconcilerParams struct {
	Repo     Repository
	Tx       txRunner
	Provider sessionFetcher
	Carts    cartStore
	Guests   guestResolver
	Catalog  variantCatalog
	Outbox   outboxPublisher
	// AllowAnyVariant keeps the last-resort mapping of unknown lines onto an arbitrary variant.
	AllowAnyVariant bool
	Metrics         *metrics.CheckoutMetrics
	Logger          *logger.Logger
	Now             func() time.Time
}

// Reconciler turns a completed provider checkout session into exactly one paid order.
type Reconciler struct {
	repo     Repository
	tx       txRunner
	provider sessionFetcher
	carts    cartStore
	guests   guestResolver
	catalog  variantCatalog
	outbox   outboxPublisher
	mapper   *variantMapper
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewReconciler validates dependencies and returns a reconciler.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Provider == nil:
		return nil, fmt.Errorf("checkout session provider required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart store required")
	case params.Guests == nil:
		return nil, fmt.Errorf("guest resolver required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		repo:     params.Repo,
		tx:       params.Tx,
		provider: params.Provider,
		carts:    params.Carts,
		guests:   params.Guests,
		catalog:  params.Catalog,
		outbox:   params.Outbox,
		mapper:   &variantMapper{catalog: params.Catalog, allowAny: params.AllowAnyVariant, logg: logg},
		metrics:  params.Metrics,
		logg:     logg,
		now:      now,
	}, nil
}

// owner is who the session was opened for, as echoed back in its metadata.
type owner struct {
	userID       *uuid.UUID
	guestSession string
	guestID      *uuid.UUID
}

// Reconcile materializes the order for a provider checkout session. Calling it
// again for the same transaction returns the existing order without side effects.
func (r *Reconciler) Reconcile(ctx context.Context, transactionID string) (*models.Order, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	ctx = r.logg.WithTransactionID(ctx, transactionID)

	existing, err := r.existingOrder(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.metrics.IncReconciled(resultDuplicate)
		r.logg.Info(ctx, "order.reconcile_duplicate")
		return existing, nil
	}

	started := time.Now()
	session, err := r.provider.GetCheckoutSession(ctx, transactionID)
	r.metrics.ObserveProviderCall("checkout_session_get", time.Since(started))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "retrieve checkout session: "+pkgstripe.ProviderMessage(err))
	}

	who, err := r.resolveOwner(ctx, session)
	if err != nil {
		return nil, err
	}
	ownerCart, err := r.findCart(ctx, who)
	if err != nil {
		return nil, err
	}

	items, err := r.itemsFromCart(ctx, ownerCart)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		items, err = r.itemsFromSession(ctx, session)
		if err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no order items found for session")
	}

	order, err := r.persist(ctx, transactionID, who, items)
	if err != nil {
		if db.IsUniqueViolation(err, uniquePaymentTransaction) {
			winner, readErr := r.existingOrder(ctx, transactionID)
			if readErr != nil {
				return nil, readErr
			}
			if winner != nil {
				r.metrics.IncReconciled(resultRaceLost)
				r.logg.Info(ctx, "order.reconcile_race_lost")
				return winner, nil
			}
		}
		return nil, err
	}

	r.metrics.IncReconciled(resultCreated)
	for _, item := range items {
		r.metrics.IncLineItemMapping(item.MappingSource.String())
	}
	r.logg.Info(r.logg.WithField(ctx, "order_id", order.ID.String()), "order.reconciled")

	r.cleanupCarts(ctx, who, ownerCart)
	return order, nil
}

func (r *Reconciler) existingOrder(ctx context.Context, transactionID string) (*models.Order, error) {
	payment, err := r.repo.FindPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, nil
	}
	order, err := r.repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment references a missing order")
	}
	return order, nil
}

func (r *Reconciler) resolveOwner(ctx context.Context, session *stripe.CheckoutSession) (owner, error) {
	var who owner
	if raw := strings.TrimSpace(session.Metadata[metadataUserID]); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			who.userID = &parsed
		} else {
			r.logg.Warn(r.logg.WithField(ctx, "user_id", raw), "order.metadata_user_invalid")
		}
	}
	who.guestSession = strings.TrimSpace(session.Metadata[metadataGuestSession])
	if who.guestSession != "" {
		guest, err := r.guests.Resolve(ctx, who.guestSession)
		if err != nil {
			return owner{}, err
		}
		if guest != nil {
			who.guestID = &guest.ID
		}
	}
	return who, nil
}

// findCart prefers the user's cart and falls back to the guest cart.
func (r *Reconciler) findCart(ctx context.Context, who owner) (*models.Cart, error) {
	if who.userID != nil {
		userCart, err := r.carts.FindByUser(ctx, *who.userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user cart")
		}
		if userCart != nil && len(userCart.Items) > 0 {
			return userCart, nil
		}
	}
	if who.guestID != nil {
		guestCart, err := r.carts.FindByGuest(ctx, *who.guestID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
		}
		return guestCart, nil
	}
	return nil, nil
}

func (r *Reconciler) itemsFromCart(ctx context.Context, ownerCart *models.Cart) ([]models.OrderItem, error) {
	if ownerCart == nil || len(ownerCart.Items) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(ownerCart.Items))
	for _, row := range ownerCart.Items {
		if row.ProductVariantID != nil {
			ids = append(ids, *row.ProductVariantID)
		}
	}
	variants, err := r.catalog.VariantsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}

	items := make([]models.OrderItem, 0, len(ids))
	for _, row := range ownerCart.Items {
		if row.ProductVariantID == nil {
			continue
		}
		variant, ok := variants[*row.ProductVariantID]
		if !ok {
			continue
		}
		items = append(items, models.OrderItem{
			ProductVariantID:     variant.ID,
			Quantity:             row.Quantity,
			PriceAtPurchaseCents: variant.Price.Shift(2).Round(0).IntPart(),
			MappingSource:        enums.MappingSourceCart,
		})
	}
	return items, nil
}

func (r *Reconciler) itemsFromSession(ctx context.Context, session *stripe.CheckoutSession) ([]models.OrderItem, error) {
	if session.LineItems == nil {
		return nil, nil
	}
	items := make([]models.OrderItem, 0, len(session.LineItems.Data))
	for _, line := range session.LineItems.Data {
		if line == nil {
			continue
		}
		mapped, err := r.mapper.resolve(ctx, line)
		if err != nil {
			return nil, err
		}
		items = append(items, models.OrderItem{
			ProductVariantID:     mapped.variantID,
			Quantity:             int(lineQuantity(line)),
			PriceAtPurchaseCents: lineUnitAmount(line),
			MappingSource:        mapped.source,
		})
	}
	return items, nil
}

func (r *Reconciler) persist(ctx context.Context, transactionID string, who owner, items []models.OrderItem) (*models.Order, error) {
	var total int64
	for _, item := range items {
		total += item.LineTotalCents()
	}
	paidAt := r.now().UTC()
	order := &models.Order{
		ID:               uuid.New(),
		UserID:           who.userID,
		Status:           enums.OrderStatusPaid,
		TotalAmountCents: total,
	}

	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		for i := range items {
			items[i].ID = uuid.New()
			items[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}
		payment := &models.Payment{
			OrderID:       order.ID,
			Method:        enums.PaymentMethodStripe,
			Status:        enums.PaymentStatusCompleted,
			PaidAt:        &paidAt,
			TransactionID: transactionID,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}

		event := outbox.OrderPaid(payloads.OrderPaidEvent{
			OrderID:          order.ID,
			UserID:           who.userID,
			TransactionID:    transactionID,
			TotalAmountCents: total,
			Currency:         enums.CurrencyUSD.String(),
			ItemCount:        len(items),
			PaidAt:           paidAt,
		}, &outbox.ActorRef{UserID: who.userID, GuestSession: who.guestSession})
		if err := r.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// cleanupCarts empties the carts the order was built for. Failures are logged
// only; the order is already committed.
func (r *Reconciler) cleanupCarts(ctx context.Context, who owner, ownerCart *models.Cart) {
	seen := map[uuid.UUID]struct{}{}
	var errs error
	remove := func(c *models.Cart) {
		if c == nil {
			return
		}
		if _, ok := seen[c.ID]; ok {
			return
		}
		seen[c.ID] = struct{}{}
		errs = multierr.Append(errs, r.carts.Delete(ctx, c.ID))
	}

	remove(ownerCart)
	if who.userID != nil {
		userCart, err := r.carts.FindByUser(ctx, *who.userID)
		errs = multierr.Append(errs, err)
		remove(userCart)
	}
	if who.guestID != nil {
		guestCart, err := r.carts.FindByGuest(ctx, *who.guestID)
		errs = multierr.Append(errs, err)
		remove(guestCart)
	}

	if errs != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", errs.Error()), "order.cart_cleanup_failed")
	}
}
