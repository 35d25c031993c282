package handler

import (
	"net/http"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type AddItemRequestDTO struct {
	Handle    string           `json:"handle"`
	Selection domain.Selection `json:"selection"`
	Quantity  int              `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type AddItemResponse struct {
	Item domain.LineItem `json:"item"`
	Cart domain.Cart     `json:"cart"`
}

// openCart opens the cart named by the X-Cart-ID header, minting one when the
// header is absent or unknown, and echoes its ID back.
func (h *HTTPHandler) openCart(w http.ResponseWriter, r *http.Request) *service.CartStore {
	cart, _ := h.carts.Open(r.Header.Get(CartIDHeader))
	w.Header().Set(CartIDHeader, cart.ID())
	return cart
}

// existingCart looks up the header's cart without minting one.
func (h *HTTPHandler) existingCart(w http.ResponseWriter, r *http.Request) (*service.CartStore, bool) {
	cart, ok := h.carts.Lookup(r.Header.Get(CartIDHeader))
	if ok {
		w.Header().Set(CartIDHeader, cart.ID())
	}
	return cart, ok
}

func emptyCart() domain.Cart {
	return domain.Cart{Items: []domain.LineItem{}, Subtotals: map[string]domain.Money{}}
}

// GetCart reports an empty cart, without registering one, when the request
// names no known cart.
func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.existingCart(w, r)
	if !ok {
		respondJSON(w, http.StatusOK, emptyCart())
		return
	}
	respondJSON(w, http.StatusOK, cart.Snapshot())
}

// AddCartItem resolves the selection against the product and adds the
// variant. An empty selection adds the first variant (quick add).
func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Handle == "" {
		respondError(w, http.StatusBadRequest, "invalid_handle", "handle is required")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	snap, variant, err := h.catalog.ResolveForCart(r.Context(), req.Handle, req.Selection)
	if err != nil {
		handleError(w, err)
		return
	}

	cart := h.openCart(w, r)
	item, err := cart.AddItem(snap.Meta(), variant, req.Quantity)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddItemResponse{Item: item, Cart: cart.Snapshot()})
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	cart, ok := h.existingCart(w, r)
	if !ok || !cart.UpdateQuantity(pathParam(r, "productID"), pathParam(r, "variantID"), req.Quantity) {
		respondError(w, http.StatusNotFound, "line_item_not_found", "cart has no such line item")
		return
	}
	respondJSON(w, http.StatusOK, cart.Snapshot())
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.existingCart(w, r)
	if !ok {
		respondJSON(w, http.StatusOK, emptyCart())
		return
	}
	cart.RemoveItem(pathParam(r, "productID"), pathParam(r, "variantID"))
	respondJSON(w, http.StatusOK, cart.Snapshot())
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.existingCart(w, r)
	if !ok {
		respondJSON(w, http.StatusOK, emptyCart())
		return
	}
	cart.Clear()
	respondJSON(w, http.StatusOK, cart.Snapshot())
}
