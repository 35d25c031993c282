package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/resolver"
)

type ProductResponse struct {
	Product      *domain.CatalogSnapshot       `json:"product"`
	Selection    domain.Selection              `json:"selection"`
	Variant      *domain.Variant               `json:"variant"`
	Availability []resolver.OptionAvailability `json:"availability"`
}

type resolveRequest struct {
	Selection domain.Selection `json:"selection"`
}

type ResolveResponse struct {
	Selection    domain.Selection              `json:"selection"`
	Variant      *domain.Variant               `json:"variant"`
	Availability []resolver.OptionAvailability `json:"availability"`
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := domain.PageParams{After: r.URL.Query().Get("after")}
	if first := r.URL.Query().Get("first"); first != "" {
		n, err := strconv.Atoi(first)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_first", "first must be a positive integer")
			return
		}
		page.First = n
	}

	result, err := h.catalog.ListProducts(r.Context(), page)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetProduct returns the product with its initial selection already
// resolved, which is what a product page renders first.
func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Product(r.Context(), pathParam(r, "handle"))
	if err != nil {
		handleError(w, err)
		return
	}

	sel := resolver.InitialSelection(snap)
	resp, err := resolveView(snap, sel)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProductResponse{
		Product:      snap,
		Selection:    resp.Selection,
		Variant:      resp.Variant,
		Availability: resp.Availability,
	})
}

// ResolveSelection answers an option change: the matching variant and the
// selectability of every value given the new selection.
func (h *HTTPHandler) ResolveSelection(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := h.catalog.Product(r.Context(), pathParam(r, "handle"))
	if err != nil {
		handleError(w, err)
		return
	}

	resp, err := resolveView(snap, req.Selection)
	if err != nil {
		handleError(w, err)
		return
	}
	if resp.Variant == nil {
		respondJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// resolveView builds the resolve response. An unresolved selection is not
// an error here: the variant is nil and the availability still applies.
func resolveView(snap *domain.CatalogSnapshot, sel domain.Selection) (ResolveResponse, error) {
	if sel == nil {
		sel = domain.Selection{}
	}
	avail, err := resolver.Availability(snap, sel)
	if err != nil {
		return ResolveResponse{}, err
	}
	resp := ResolveResponse{Selection: sel, Availability: avail}

	v, err := resolver.Resolve(snap, sel)
	switch {
	case err == nil:
		resp.Variant = &v
	case errors.Is(err, domain.ErrUnresolved):
		// variant stays nil
	default:
		return ResolveResponse{}, err
	}
	return resp, nil
}
