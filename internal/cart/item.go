package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// idSeparator joins product and variant ids in client item ids.
const idSeparator = "::"

// Item is the cart line exchanged with clients. ID is either a bare product id
// or "productId::variantId"; Price is in dollars.
type Item struct {
	ID       string          `json:"id" validate:"required,max=200"`
	Name     string          `json:"name" validate:"max=300"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image,omitempty" validate:"omitempty,max=2048"`
}

// Identity selects whose cart an operation targets. UserID wins over GuestToken.
type Identity struct {
	UserID     *uuid.UUID
	GuestToken string
}

// IsZero reports whether neither a user nor a guest is known.
func (i Identity) IsZero() bool {
	return i.UserID == nil && strings.TrimSpace(i.GuestToken) == ""
}

// VariantID returns the variant half of a composite id when it is a UUID.
func (i Item) VariantID() *uuid.UUID {
	_, variant, ok := strings.Cut(strings.TrimSpace(i.ID), idSeparator)
	if !ok {
		return nil
	}
	return parseUUID(variant)
}

// ProductID returns the product half of the id when it is a UUID.
func (i Item) ProductID() *uuid.UUID {
	product, _, _ := strings.Cut(strings.TrimSpace(i.ID), idSeparator)
	return parseUUID(product)
}

// Key is the identity used for deduplication: the variant id when known,
// otherwise the trimmed client id.
func (i Item) Key() string {
	if variant := i.VariantID(); variant != nil {
		return variant.String()
	}
	return strings.TrimSpace(i.ID)
}

// PriceCents converts the dollar price to cents, rounding half away from zero.
func (i Item) PriceCents() int64 {
	return i.Price.Shift(2).Round(0).IntPart()
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Normalize trims ids, drops lines with a blank id, a negative price, or a
// quantity below one, and collapses duplicate keys keeping the last occurrence in the first position.
func Normalize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = strings.TrimSpace(item.Name)
		item.Image = strings.TrimSpace(item.Image)
		if item.ID == "" || item.Quantity < 1 || item.Price.IsNegative() {
			continue
		}
		key := item.Key()
		if pos, ok := index[key]; ok {
			out[pos] = item
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func toRow(cartID uuid.UUID, item Item) models.CartItem {
	row := models.CartItem{
		ID:               uuid.New(),
		CartID:           cartID,
		ItemKey:          item.Key(),
		ProductVariantID: item.VariantID(),
		ProductID:        item.ProductID(),
		Quantity:         item.Quantity,
		PriceAtAddCents:  item.PriceCents(),
		Title:            item.Name,
	}
	if item.Image != "" {
		image := item.Image
		row.Image = &image
	}
	return row
}

func fromRow(row models.CartItem) Item {
	item := Item{
		ID:       row.ItemKey,
		Name:     row.Title,
		Price:    decimal.New(row.PriceAtAddCents, -2),
		Quantity: row.Quantity,
	}
	if row.ProductVariantID != nil && row.ProductID != nil {
		item.ID = row.ProductID.String() + idSeparator + row.ProductVariantID.String()
	}
	if row.Image != nil {
		item.Image = *row.Image
	}
	return item
}

func parseUUID(raw string) *uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &parsed
}
