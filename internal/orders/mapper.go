package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

var variantMetadataKeys = []string{"productVariantId", "productvariantid"}

// variantMapper ties a provider line item back to a catalog variant when the
// shopper's cart is gone. Sources are tried from most to least trustworthy.
type variantMapper struct {
	catalog  variantCatalog
	allowAny bool
	logg     *logger.Logger
}

type mappedLine struct {
	variantID uuid.UUID
	source    enums.LineItemMappingSource
}

func (m *variantMapper) resolve(ctx context.Context, line *stripe.LineItem) (mappedLine, error) {
	product := lineProduct(line)

	if product != nil {
		for _, key := range variantMetadataKeys {
			id, err := uuid.Parse(strings.TrimSpace(product.Metadata[key]))
			if err != nil {
				continue
			}
			variant, err := m.catalog.FindVariant(ctx, id)
			if err != nil {
				return mappedLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
			}
			if variant != nil {
				return mappedLine{variantID: variant.ID, source: enums.MappingSourceMetadata}, nil
			}
		}
	}

	if name := lineName(line); name != "" {
		match, err := m.catalog.FindProductByName(ctx, name)
		if err != nil {
			return mappedLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product by name")
		}
		if match != nil {
			variant, err := m.catalog.FirstVariantOfProduct(ctx, match.ID)
			if err != nil {
				return mappedLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product variant")
			}
			if variant != nil {
				return mappedLine{variantID: variant.ID, source: enums.MappingSourceNameMatch}, nil
			}
		}
	}

	if !m.allowAny {
		return mappedLine{}, pkgerrors.New(pkgerrors.CodeInternal, "unable to map line item to product variant").
			WithDetails(map[string]any{"line_item": line.ID})
	}

	variant, err := m.catalog.AnyVariant(ctx)
	if err != nil {
		return mappedLine{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fallback variant")
	}
	if variant == nil {
		return mappedLine{}, pkgerrors.New(pkgerrors.CodeInternal, "unable to map line item to product variant id (no variants exist)")
	}
	m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
		"line_item":  line.ID,
		"line_name":  lineName(line),
		"variant_id": variant.ID.String(),
	}), "order.line_item_mapped_to_any_variant")
	return mappedLine{variantID: variant.ID, source: enums.MappingSourceAnyVariant}, nil
}

func lineProduct(line *stripe.LineItem) *stripe.Product {
	if line == nil || line.Price == nil {
		return nil
	}
	return line.Price.Product
}

func lineName(line *stripe.LineItem) string {
	if name := strings.TrimSpace(line.Description); name != "" {
		return name
	}
	if product := lineProduct(line); product != nil {
		return strings.TrimSpace(product.Name)
	}
	return ""
}

// lineUnitAmount prefers the price's unit amount and falls back to the line total split across quantity.
func lineUnitAmount(line *stripe.LineItem) int64 {
	if line.Price != nil && line.Price.UnitAmount > 0 {
		return line.Price.UnitAmount
	}
	qty := lineQuantity(line)
	return line.AmountTotal / qty
}

func lineQuantity(line *stripe.LineItem) int64 {
	if line.Quantity < 1 {
		return 1
	}
	return line.Quantity
}
