package domain

import (
	"fmt"
	"sort"
	"strings"
)

type OptionDefinition struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// HasValue reports whether value is one of the declared values.
func (o OptionDefinition) HasValue(value string) bool {
	for _, v := range o.Values {
		if v == value {
			return true
		}
	}
	return false
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

// OptionValue returns the value this variant carries for the named option.
func (v Variant) OptionValue(name string) (string, bool) {
	for _, o := range v.SelectedOptions {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

// Selection returns the variant's options as a Selection.
func (v Variant) Selection() Selection {
	sel := make(Selection, len(v.SelectedOptions))
	for _, o := range v.SelectedOptions {
		sel[o.Name] = o.Value
	}
	return sel
}

type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

type PriceRange struct {
	MinVariantPrice Money `json:"minVariantPrice"`
	MaxVariantPrice Money `json:"maxVariantPrice"`
}

// CatalogSnapshot is the normalized view of one product. Listing pages may
// carry a partial snapshot (typically only the first variant).
type CatalogSnapshot struct {
	ProductID   string             `json:"productId"`
	Handle      string             `json:"handle"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Images      []Image            `json:"images"`
	PriceRange  PriceRange         `json:"priceRange"`
	Options     []OptionDefinition `json:"options"`
	Variants    []Variant          `json:"variants"`
}

// Option returns the option definition with the given name.
func (s *CatalogSnapshot) Option(name string) (OptionDefinition, bool) {
	for _, o := range s.Options {
		if o.Name == name {
			return o, true
		}
	}
	return OptionDefinition{}, false
}

// ImageURL returns the first image URL or "".
func (s *CatalogSnapshot) ImageURL() string {
	if len(s.Images) == 0 {
		return ""
	}
	return s.Images[0].URL
}

// Meta returns the product fields copied onto line items.
func (s *CatalogSnapshot) Meta() ProductMeta {
	return ProductMeta{
		ID:       s.ProductID,
		Handle:   s.Handle,
		Title:    s.Title,
		ImageURL: s.ImageURL(),
	}
}

// Validate checks the catalog invariants: at least one variant, unique
// option values, every selected option declared, exactly one value per
// declared option on each variant, and no two variants with the same
// combination.
func (s *CatalogSnapshot) Validate() error {
	if s.ProductID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidSnapshot)
	}
	if len(s.Variants) == 0 {
		return fmt.Errorf("%w: product %s has no variants", ErrInvalidSnapshot, s.ProductID)
	}

	declared := make(map[string]map[string]bool, len(s.Options))
	for _, o := range s.Options {
		if _, dup := declared[o.Name]; dup {
			return fmt.Errorf("%w: option %q declared twice", ErrInvalidSnapshot, o.Name)
		}
		values := make(map[string]bool, len(o.Values))
		for _, v := range o.Values {
			if values[v] {
				return fmt.Errorf("%w: option %q repeats value %q", ErrInvalidSnapshot, o.Name, v)
			}
			values[v] = true
		}
		declared[o.Name] = values
	}

	seen := make(map[string]string, len(s.Variants))
	for _, v := range s.Variants {
		if v.ID == "" {
			return fmt.Errorf("%w: variant without id", ErrInvalidSnapshot)
		}
		if len(v.SelectedOptions) != len(s.Options) {
			return fmt.Errorf("%w: variant %s has %d options, product declares %d",
				ErrInvalidSnapshot, v.ID, len(v.SelectedOptions), len(s.Options))
		}
		names := make(map[string]bool, len(v.SelectedOptions))
		for _, o := range v.SelectedOptions {
			values, ok := declared[o.Name]
			if !ok || !values[o.Value] {
				return fmt.Errorf("%w: variant %s uses undeclared %s=%s", ErrInvalidSnapshot, v.ID, o.Name, o.Value)
			}
			if names[o.Name] {
				return fmt.Errorf("%w: variant %s sets %q twice", ErrInvalidSnapshot, v.ID, o.Name)
			}
			names[o.Name] = true
		}
		key := v.Selection().Key()
		if other, dup := seen[key]; dup {
			return fmt.Errorf("%w: variants %s and %s share options %s", ErrInvalidSnapshot, other, v.ID, key)
		}
		seen[key] = v.ID
	}
	return nil
}

// Selection maps option names to chosen values. It may be partial.
type Selection map[string]string

// Key is a canonical string for the selection, independent of map order.
func (s Selection) Key() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s[name])
	}
	return b.String()
}

// With returns a copy of the selection with name set to value.
func (s Selection) With(name, value string) Selection {
	out := make(Selection, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = value
	return out
}

type PageParams struct {
	First int    `json:"first"`
	After string `json:"after,omitempty"`
}

const DefaultPageSize = 12

// ProductPage is one page of listing snapshots.
type ProductPage struct {
	Products    []CatalogSnapshot `json:"products"`
	EndCursor   string            `json:"endCursor,omitempty"`
	HasNextPage bool              `json:"hasNextPage"`
}
