// Package contract validates and normalizes the (monthyear, product)
// pair that identifies an independent order book (spec.md §3).
package contract

import (
	"regexp"

	"github.com/uhyunpark/tradecore/internal/apperr"
)

var (
	monthYearRe = regexp.MustCompile(`^[a-z]{3}[0-9]{2}$`)
	productRe   = regexp.MustCompile(`^[a-z]{2,}$`)
)

// ID is a validated contract identifier: the normalized string
// "<monthyear>-<product>" plus its parsed parts.
type ID struct {
	MonthYear string
	Product   string
}

// String returns the canonical "<monthyear>-<product>" form.
func (c ID) String() string {
	return c.MonthYear + "-" + c.Product
}

// New validates monthyear and product and returns the normalized ID.
func New(monthyear, product string) (ID, error) {
	if !monthYearRe.MatchString(monthyear) {
		return ID{}, apperr.Invalid("monthyear %q must match ^[a-z]{3}[0-9]{2}$", monthyear)
	}
	if !productRe.MatchString(product) {
		return ID{}, apperr.Invalid("product %q must be lowercase alpha, length >= 2", product)
	}
	return ID{MonthYear: monthyear, Product: product}, nil
}

// Parse splits a normalized "<monthyear>-<product>" string back into
// an ID, validating both halves.
func Parse(s string) (ID, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			return New(s[:i], s[i+1:])
		}
	}
	return ID{}, apperr.Invalid("contract id %q missing separator", s)
}
