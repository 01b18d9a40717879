package product

import (
	"strings"
	"unicode"

	"github.com/angelmondragon/orderplanner/pkg/db/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// fold lowercases s and strips diacritics so "Jalapeño" matches "jalapeno".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(strings.TrimSpace(out))
}

func matchesQuery(p models.Product, folded string) bool {
	if folded == "" {
		return true
	}
	return strings.Contains(fold(p.Name), folded) || strings.Contains(fold(p.Reference), folded)
}

func filterProducts(rows []models.Product, filter ListFilter) []models.Product {
	folded := fold(filter.Query)
	destination := strings.TrimSpace(filter.DestinationCode)

	out := make([]models.Product, 0, len(rows))
	for _, p := range rows {
		if p.IsHidden && !filter.IncludeHidden {
			continue
		}
		if destination != "" && !strings.EqualFold(p.DestinationCode, destination) {
			continue
		}
		if !matchesQuery(p, folded) {
			continue
		}
		out = append(out, p)
	}
	return out
}
