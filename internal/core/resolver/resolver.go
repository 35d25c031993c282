// Package resolver maps option selections onto catalog variants.
//
// Every function here is pure: it reads the snapshot and selection it is
// given and never mutates them, so callers may invoke it concurrently.
package resolver

import (
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ValueAvailability describes one option value for display.
type ValueAvailability struct {
	Value      string `json:"value"`
	Selected   bool   `json:"selected"`
	Selectable bool   `json:"selectable"`
}

type OptionAvailability struct {
	Name   string              `json:"name"`
	Values []ValueAvailability `json:"values"`
}

// ValidateSelection fails with ErrMalformedSelection when the selection
// names an option or value the snapshot does not declare.
func ValidateSelection(s *domain.CatalogSnapshot, sel domain.Selection) error {
	for name, value := range sel {
		opt, ok := s.Option(name)
		if !ok {
			return fmt.Errorf("%w: unknown option %q", domain.ErrMalformedSelection, name)
		}
		if !opt.HasValue(value) {
			return fmt.Errorf("%w: option %q has no value %q", domain.ErrMalformedSelection, name, value)
		}
	}
	return nil
}

// Resolve returns the single variant whose options equal the selection.
// A partial selection, or a complete one with no matching variant, yields
// ErrUnresolved.
func Resolve(s *domain.CatalogSnapshot, sel domain.Selection) (domain.Variant, error) {
	if err := ValidateSelection(s, sel); err != nil {
		return domain.Variant{}, err
	}
	if len(sel) != len(s.Options) {
		return domain.Variant{}, fmt.Errorf("%w: %d of %d options selected",
			domain.ErrUnresolved, len(sel), len(s.Options))
	}

	var (
		found   domain.Variant
		matches int
	)
	for _, v := range s.Variants {
		if matchesExactly(v, sel) {
			found = v
			matches++
		}
	}

	switch matches {
	case 0:
		return domain.Variant{}, fmt.Errorf("%w: no variant for %s", domain.ErrUnresolved, sel.Key())
	case 1:
		return found, nil
	default:
		// Only reachable with a snapshot that skipped Validate.
		return domain.Variant{}, fmt.Errorf("%w: %d variants match %s", domain.ErrUnresolved, matches, sel.Key())
	}
}

// InitialSelection returns the first variant's options, the conventional
// starting point before the shopper picks anything.
func InitialSelection(s *domain.CatalogSnapshot) domain.Selection {
	if len(s.Variants) == 0 {
		return domain.Selection{}
	}
	return s.Variants[0].Selection()
}

// Availability reports, for every declared option value, whether choosing it
// keeps the selection purchasable. A value is selectable only if some
// available variant carries it and agrees with every other option already
// chosen. All variants are considered, so the answer does not depend on
// variant order.
func Availability(s *domain.CatalogSnapshot, sel domain.Selection) ([]OptionAvailability, error) {
	if err := ValidateSelection(s, sel); err != nil {
		return nil, err
	}

	out := make([]OptionAvailability, 0, len(s.Options))
	for _, opt := range s.Options {
		oa := OptionAvailability{Name: opt.Name, Values: make([]ValueAvailability, 0, len(opt.Values))}
		for _, value := range opt.Values {
			oa.Values = append(oa.Values, ValueAvailability{
				Value:      value,
				Selected:   sel[opt.Name] == value,
				Selectable: selectable(s, sel, opt.Name, value),
			})
		}
		out = append(out, oa)
	}
	return out, nil
}

func selectable(s *domain.CatalogSnapshot, sel domain.Selection, name, value string) bool {
	candidate := sel.With(name, value)
	for _, v := range s.Variants {
		if v.AvailableForSale && matchesPartially(v, candidate) {
			return true
		}
	}
	return false
}

func matchesExactly(v domain.Variant, sel domain.Selection) bool {
	return len(v.SelectedOptions) == len(sel) && matchesPartially(v, sel)
}

// matchesPartially reports whether v agrees with every entry in sel.
func matchesPartially(v domain.Variant, sel domain.Selection) bool {
	for name, want := range sel {
		got, ok := v.OptionValue(name)
		if !ok || got != want {
			return false
		}
	}
	return true
}
