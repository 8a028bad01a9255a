package catalog

import (
	"strings"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// AbsoluteURL turns a stored image reference into a URL the payment page and
// order views can load. Absolute http(s) references pass through.
func AbsoluteURL(baseURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return base + "/" + strings.TrimLeft(ref, "/")
}

// ResolveImage picks the display image for a product: the primary image, then
// the first image, then the legacy inline image, then placeholder. An empty
// placeholder means "no image".
func ResolveImage(images []models.ProductImage, legacy *string, baseURL, placeholder string) string {
	var chosen string
	for _, img := range images {
		if img.IsPrimary && strings.TrimSpace(img.URL) != "" {
			chosen = img.URL
			break
		}
	}
	if chosen == "" {
		for _, img := range images {
			if strings.TrimSpace(img.URL) != "" {
				chosen = img.URL
				break
			}
		}
	}
	if chosen == "" && legacy != nil {
		chosen = *legacy
	}
	if strings.TrimSpace(chosen) == "" {
		return placeholder
	}
	return AbsoluteURL(baseURL, chosen)
}
