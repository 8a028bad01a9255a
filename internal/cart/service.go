package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Service exposes server-side cart persistence keyed by shopper identity.
type Service interface {
	Pull(ctx context.Context, identity Identity) ([]Item, error)
	Push(ctx context.Context, identity Identity, items []Item) ([]Item, error)
	Clear(ctx context.Context, identity Identity) error
	MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, guestToken string) error
}

type service struct {
	repo   CartRepository
	tx     txRunner
	guests guestResolver
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, guests guestResolver) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if guests == nil {
		return nil, fmt.Errorf("guest resolver required")
	}
	return &service{repo: repo, tx: tx, guests: guests}, nil
}

// owner is the resolved owning side of a cart. pendingGuest is set when an
// authenticated request still carries a live guest session.
type owner struct {
	userID       *uuid.UUID
	guestID      *uuid.UUID
	pendingGuest *uuid.UUID
}

func (s *service) resolve(ctx context.Context, identity Identity) (owner, error) {
	guest, err := s.guests.Resolve(ctx, identity.GuestToken)
	if err != nil {
		return owner{}, err
	}
	if identity.UserID != nil {
		o := owner{userID: identity.UserID}
		if guest != nil {
			o.pendingGuest = &guest.ID
		}
		return o, nil
	}
	if guest == nil {
		return owner{}, nil
	}
	return owner{guestID: &guest.ID}, nil
}

func (o owner) known() bool {
	return o.userID != nil || o.guestID != nil
}

func findCart(ctx context.Context, repo CartRepository, o owner) (*models.Cart, error) {
	switch {
	case o.userID != nil:
		return repo.FindByUser(ctx, *o.userID)
	case o.guestID != nil:
		return repo.FindByGuest(ctx, *o.guestID)
	default:
		return nil, nil
	}
}

// Pull returns the identity's items; a missing cart reads as empty.
func (s *service) Pull(ctx context.Context, identity Identity) ([]Item, error) {
	o, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	if o.pendingGuest != nil {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return absorbGuest(ctx, s.repo.WithTx(tx), *o.userID, *o.pendingGuest)
		})
		if err != nil {
			return nil, err
		}
	}
	cart, err := findCart(ctx, s.repo, o)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return []Item{}, nil
	}
	items := make([]Item, 0, len(cart.Items))
	for _, row := range cart.Items {
		items = append(items, fromRow(row))
	}
	return items, nil
}

// Push replaces the identity's items with the normalized input, creating the cart when needed.
func (s *service) Push(ctx context.Context, identity Identity, items []Item) ([]Item, error) {
	o, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !o.known() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")
	}

	normalized := Normalize(items)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if o.pendingGuest != nil {
			if err := absorbGuest(ctx, repo, *o.userID, *o.pendingGuest); err != nil {
				return err
			}
		}
		cart, err := findCart(ctx, repo, o)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if cart == nil {
			cart = &models.Cart{UserID: o.userID, GuestID: o.guestID}
			if err := repo.Create(ctx, cart); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		}

		rows := make([]models.CartItem, 0, len(normalized))
		for _, item := range normalized {
			rows = append(rows, toRow(cart.ID, item))
		}
		if err := repo.ReplaceItems(ctx, cart.ID, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// Clear empties the identity's cart. The cart row itself survives; a pending
// guest cart is folded in first so its items do not resurface later.
func (s *service) Clear(ctx context.Context, identity Identity) error {
	o, err := s.resolve(ctx, identity)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if o.pendingGuest != nil {
			if err := absorbGuest(ctx, repo, *o.userID, *o.pendingGuest); err != nil {
				return err
			}
		}
		cart, err := findCart(ctx, repo, o)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if cart == nil {
			return nil
		}
		if err := repo.DeleteItems(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
}

// MergeGuestIntoUser moves the guest's items into the user's cart and drops the
// guest cart. The user's row wins on key conflicts.
func (s *service) MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, guestToken string) error {
	guest, err := s.guests.Resolve(ctx, guestToken)
	if err != nil {
		return err
	}
	if guest == nil {
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return absorbGuest(ctx, s.repo.WithTx(tx), userID, guest.ID)
	})
}

// absorbGuest folds the guest cart into the user cart inside the caller's
// transaction. A missing guest cart is a no-op, so repeat calls are cheap.
func absorbGuest(ctx context.Context, repo CartRepository, userID, guestID uuid.UUID) error {
	guestCart, err := repo.FindByGuest(ctx, guestID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}
	if guestCart == nil {
		return nil
	}

	userCart, err := repo.FindByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user cart")
	}
	if userCart == nil {
		userCart = &models.Cart{UserID: &userID}
		if err := repo.Create(ctx, userCart); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user cart")
		}
	}

	merged := mergeRows(guestCart.Items, userCart.Items)
	if err := repo.Delete(ctx, guestCart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete guest cart")
	}
	if err := repo.ReplaceItems(ctx, userCart.ID, merged); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart items")
	}
	return nil
}

// mergeRows keeps first-seen order; later rows replace earlier ones sharing a key.
func mergeRows(base, overlay []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, 0, len(base)+len(overlay))
	index := make(map[string]int, len(base)+len(overlay))
	for _, rows := range [][]models.CartItem{base, overlay} {
		for _, row := range rows {
			row.ID = uuid.Nil
			if pos, ok := index[row.ItemKey]; ok {
				out[pos] = row
				continue
			}
			index[row.ItemKey] = len(out)
			out = append(out, row)
		}
	}
	return out
}
