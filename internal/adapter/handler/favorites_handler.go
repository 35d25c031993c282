package handler

import (
	"net/http"

	"github.com/rl1809/storefront/internal/core/domain"
)

type FavoriteStatusResponse struct {
	ProductID string               `json:"productId"`
	State     domain.FavoriteState `json:"state"`
}

type toggleFavoriteRequest struct {
	Handle       string `json:"handle"`
	Title        string `json:"title"`
	Price        string `json:"price"`
	CurrencyCode string `json:"currencyCode"`
	ImageURL     string `json:"imageUrl"`
}

func (h *HTTPHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.favorites.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	if favs == nil {
		favs = []domain.Favorite{}
	}
	respondJSON(w, http.StatusOK, favs)
}

// GetFavorite reports the cached membership state, checking the backend
// when the tracker has no answer yet or ?refresh=true is passed.
func (h *HTTPHandler) GetFavorite(w http.ResponseWriter, r *http.Request) {
	productID := pathParam(r, "productID")
	tracker, err := h.favorites.Open(r.Context(), domain.FavoriteProduct{ID: productID})
	if err != nil {
		handleError(w, err)
		return
	}
	if r.URL.Query().Get("refresh") == "true" && tracker.State().Settled() {
		if _, err := tracker.Check(r.Context()); err != nil {
			handleError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, FavoriteStatusResponse{ProductID: productID, State: tracker.State()})
}

// ToggleFavorite flips membership. The body carries the product fields
// stored on the favorite row.
func (h *HTTPHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req toggleFavoriteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	product := domain.FavoriteProduct{
		ID:       pathParam(r, "productID"),
		Handle:   req.Handle,
		Title:    req.Title,
		ImageURL: req.ImageURL,
	}
	if req.Price != "" {
		price, err := domain.ParseMoney(req.Price, req.CurrencyCode)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_price", "price must be a decimal amount")
			return
		}
		product.Price = price
	}

	tracker, err := h.favorites.Open(r.Context(), product)
	if err != nil {
		handleError(w, err)
		return
	}
	state, err := tracker.Toggle(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FavoriteStatusResponse{ProductID: product.ID, State: state})
}
