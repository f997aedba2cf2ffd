package catalog

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/bajo34/wa-pro/internal/textutil"
)

var synonymRules = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`\b(?:play\s*station\s*5|play\s*5|ps\s*5)\b`), "ps5"},
	{regexp.MustCompile(`\b(?:play\s*station\s*4|play\s*4|ps\s*4)\b`), "ps4"},
	{regexp.MustCompile(`\b(?:auris|auri|auricular(?:es)?|headset)\b`), "auriculares"},
	{regexp.MustCompile(`\b(?:mando|control)\b`), "joystick"},
}

func applySynonyms(text string) string {
	for _, rule := range synonymRules {
		text = rule.pattern.ReplaceAllString(text, rule.repl)
	}
	return text
}

type scoredItem struct {
	item  Item
	score int
}

// Search ranks items against a free-text query. Name matches weigh
// more than matches anywhere else, tokens of four or more characters
// also get prefix credit, and out-of-stock items never rank.
func Search(items []Item, q string, limit int) []Item {
	query := applySynonyms(textutil.Squash(q))
	if query == "" {
		return nil
	}
	tokens := strings.Fields(query)

	scored := make([]scoredItem, 0, len(items))
	for _, item := range items {
		if item.InStock != nil && !*item.InStock {
			continue
		}

		hay := applySynonyms(textutil.Squash(
			item.ID + " " + item.Name + " " + item.Category + " " + item.URL + " " + item.Description,
		))
		nameHay := applySynonyms(textutil.Squash(item.Name))

		score := 0
		for _, t := range tokens {
			switch {
			case strings.Contains(nameHay, t):
				score += 5
			case strings.Contains(hay, t):
				score += 2
			}

			if len(t) >= 4 {
				prefix := t[:min(6, len(t))]
				switch {
				case strings.Contains(nameHay, prefix):
					score += 2
				case strings.Contains(hay, prefix):
					score++
				}
			}
		}

		if strings.Contains(hay, query) {
			score += 2
		}
		if strings.Contains(hay, " "+query+" ") {
			score++
		}

		if score > 0 {
			scored = append(scored, scoredItem{item, score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]Item, len(scored))
	for i, s := range scored {
		out[i] = s.item
	}
	return out
}

var esAR = message.NewPrinter(language.MustParse("es-AR"))

// FormatPrice renders the item's price the way an Argentine shop would
// write it, e.g. "ARS 70.500". Empty when the item has no price at all.
func FormatPrice(item Item) string {
	if item.HasPrice {
		currency := item.Currency
		if currency == "" {
			currency = "ARS"
		}
		if item.PriceNumber == math.Trunc(item.PriceNumber) {
			return currency + " " + esAR.Sprint(number.Decimal(int64(item.PriceNumber)))
		}
		return currency + " " + esAR.Sprint(number.Decimal(item.PriceNumber))
	}
	return item.PriceText
}

// FormatItemLine renders one numbered result line for a product list
// reply, with the product URL on its own line when present.
func FormatItemLine(item Item, idx int) string {
	line := fmt.Sprintf("%d) %s", idx, item.Name)
	if price := FormatPrice(item); price != "" {
		line += " — " + price
	}
	if item.URL != "" {
		line += "\n" + item.URL
	}
	return line
}
