package catalog

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	hashtagPattern    = regexp.MustCompile(`#[\p{L}0-9_]+`)
	descPrefixPattern = regexp.MustCompile(`(?i)^\s*descripci[oó]n\s+del\s+producto\s*`)
	spacesPattern     = regexp.MustCompile(`\s+`)
	thousandsPattern  = regexp.MustCompile(`\.(?:\d{3}(?:\D|$))`)
	slugSuffixPattern = regexp.MustCompile(`(?i)\.(?:json|html?)$`)
	slugSepPattern    = regexp.MustCompile(`[-_]+`)
	absURLPattern     = regexp.MustCompile(`(?i)^https?://`)
	moneyJunkPattern  = regexp.MustCompile(`[^\d.,-]`)
)

// mapRaw coerces a loosely-shaped feed array into Items. Entries
// without a usable id or name are dropped, as are ones explicitly out
// of stock.
func mapRaw(raw []map[string]any) []Item {
	items := make([]Item, 0, len(raw))
	for _, x := range raw {
		itemURL := firstString(x, "url", "productUrl")

		name := firstString(x, "name", "title")
		if name == "" {
			name = nameFromURL(itemURL)
		}

		id := firstString(x, "id", "sku", "slug")
		if id == "" {
			id = name
		}
		if id == "" {
			id = itemURL
		}
		if id == "" || name == "" {
			continue
		}

		price, hasPrice := firstMoney(x, "priceNumber", "priceArs", "price", "price_ars", "precio")

		currency := firstString(x, "currency")
		if currency == "" && hasPrice {
			currency = "ARS"
		}

		inStock := firstBool(x, "inStock", "stock")
		if inStock != nil && !*inStock {
			continue
		}

		items = append(items, Item{
			ID:          id,
			Name:        strings.TrimSpace(name),
			PriceNumber: price,
			HasPrice:    hasPrice,
			Currency:    currency,
			PriceText:   firstString(x, "priceText", "priceFormatted"),
			InStock:     inStock,
			URL:         itemURL,
			Image:       resolveImageURL(firstString(x, "image", "imageUrl"), itemURL),
			Category:    firstString(x, "category"),
			Description: cleanDescription(firstString(x, "description", "descriptionRaw")),
		})
	}
	return items
}

func firstString(x map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := x[k].(string); ok {
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		}
	}
	return ""
}

func firstMoney(x map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := x[k]; ok {
			if n, ok := coerceMoney(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// coerceMoney accepts plain numbers and es-AR formatted strings like
// "$ 70.500,00", which parse to 70500.
func coerceMoney(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := moneyJunkPattern.ReplaceAllString(strings.TrimSpace(t), "")
		if s == "" {
			return 0, false
		}
		s = stripThousands(s)
		s = strings.ReplaceAll(s, ",", ".")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// stripThousands removes "." used as a thousands separator, i.e. dots
// followed by exactly three digits and then a non-digit or the end.
func stripThousands(s string) string {
	for {
		loc := thousandsPattern.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = s[:loc[0]] + s[loc[0]+1:]
	}
}

func firstBool(x map[string]any, keys ...string) *bool {
	for _, k := range keys {
		if v, ok := x[k]; ok {
			if b := coerceBool(v); b != nil {
				return b
			}
		}
	}
	return nil
}

func coerceBool(v any) *bool {
	switch t := v.(type) {
	case bool:
		return boolPtr(t)
	case float64:
		return boolPtr(t != 0)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "si", "sí", "1", "in_stock", "stock", "available":
			return boolPtr(true)
		case "false", "no", "0", "out_of_stock", "sin_stock", "unavailable":
			return boolPtr(false)
		}
	}
	return nil
}

func resolveImageURL(image, productURL string) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	if absURLPattern.MatchString(image) {
		return image
	}
	if productURL != "" {
		base, err := url.Parse(productURL)
		if err == nil {
			if rel, err := url.Parse(image); err == nil {
				return base.ResolveReference(rel).String()
			}
		}
	}
	return image
}

func nameFromURL(u string) string {
	if u == "" {
		return ""
	}
	path := u
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return ""
	}
	return slugToTitle(parts[len(parts)-1])
}

func slugToTitle(slug string) string {
	if i := strings.IndexAny(slug, "?#"); i >= 0 {
		slug = slug[:i]
	}
	slug = slugSuffixPattern.ReplaceAllString(slug, "")
	slug = strings.TrimSpace(slugSepPattern.ReplaceAllString(slug, " "))
	if slug == "" {
		return ""
	}
	return strings.ToUpper(slug[:1]) + slug[1:]
}

func cleanDescription(text string) string {
	if text == "" {
		return ""
	}
	cleaned := descPrefixPattern.ReplaceAllString(text, "")
	cleaned = hashtagPattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(spacesPattern.ReplaceAllString(cleaned, " "))
}
