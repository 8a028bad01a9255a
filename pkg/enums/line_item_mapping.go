package enums

import "fmt"

// LineItemMappingSource records how an order item was tied back to a catalog variant.
type LineItemMappingSource string

const (
	// MappingSourceCart means the item came from a persisted cart row.
	MappingSourceCart LineItemMappingSource = "cart"
	// MappingSourceMetadata means the provider echoed the variant id in product metadata.
	MappingSourceMetadata LineItemMappingSource = "metadata"
	// MappingSourceNameMatch means the provider product name matched a catalog product exactly.
	MappingSourceNameMatch LineItemMappingSource = "name_match"
	// MappingSourceAnyVariant is the last-resort approximation; the variant may be wrong.
	MappingSourceAnyVariant LineItemMappingSource = "any_variant"
)

var validMappingSources = []LineItemMappingSource{
	MappingSourceCart,
	MappingSourceMetadata,
	MappingSourceNameMatch,
	MappingSourceAnyVariant,
}

func (s LineItemMappingSource) String() string {
	return string(s)
}

func (s LineItemMappingSource) IsValid() bool {
	for _, candidate := range validMappingSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsApproximate reports whether the mapping may attribute the item to the wrong product.
func (s LineItemMappingSource) IsApproximate() bool {
	return s == MappingSourceAnyVariant
}

func ParseLineItemMappingSource(value string) (LineItemMappingSource, error) {
	for _, candidate := range validMappingSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mapping source %q", value)
}
