package domain

import "time"

// ProductMeta is the product data copied onto a line item for display.
type ProductMeta struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// MaxLineQuantity bounds one line's quantity, which keeps item counts and
// line totals far from int overflow.
const MaxLineQuantity = 1_000_000

type LineItemKey struct {
	ProductID string
	VariantID string
}

type LineItem struct {
	Product         ProductMeta      `json:"product"`
	VariantID       string           `json:"variantId"`
	VariantTitle    string           `json:"variantTitle"`
	UnitPrice       Money            `json:"unitPrice"`
	Quantity        int              `json:"quantity"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
	AddedAt         time.Time        `json:"addedAt"`
}

func (li LineItem) Key() LineItemKey {
	return LineItemKey{ProductID: li.Product.ID, VariantID: li.VariantID}
}

// LineTotal is unit price times quantity.
func (li LineItem) LineTotal() Money {
	return li.UnitPrice.Mul(li.Quantity)
}

// Cart is a read-only copy of a cart store's contents.
type Cart struct {
	ID        string           `json:"id"`
	Items     []LineItem       `json:"items"`
	Subtotals map[string]Money `json:"subtotals"`
	ItemCount int              `json:"itemCount"`
	Version   uint64           `json:"version"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
