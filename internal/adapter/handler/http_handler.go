package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

// CartIDHeader carries the cart a request operates on. Adding an item to an
// absent or unknown cart mints a new one, and responses echo its ID.
const CartIDHeader = "X-Cart-ID"

const (
	maxBodyBytes = 1 << 20
	// statusClientClosedRequest is the nginx convention for a request the
	// client abandoned before the response was written.
	statusClientClosedRequest = 499
)

type HTTPHandler struct {
	catalog   *service.CatalogService
	carts     *service.CartSessions
	favorites *service.FavoritesService
	sessions  port.SessionRepository
	// health may be nil
	health *HealthMonitor
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewHTTPHandler(
	catalog *service.CatalogService,
	carts *service.CartSessions,
	favorites *service.FavoritesService,
	sessions port.SessionRepository,
	health *HealthMonitor,
) *HTTPHandler {
	return &HTTPHandler{
		catalog:   catalog,
		carts:     carts,
		favorites: favorites,
		sessions:  sessions,
		health:    health,
	}
}

// Register mounts the API on r. Global middleware (logging, recovery,
// timeouts) is the caller's business.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Post("/sessions", h.CreateSession)
		r.Delete("/sessions", h.DeleteSession)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{handle}", h.GetProduct)
			r.Post("/{handle}/resolve", h.ResolveSelection)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{productID}/{variantID}", h.UpdateCartItem)
			r.Delete("/items/{productID}/{variantID}", h.RemoveCartItem)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", h.ListFavorites)
			r.Get("/{productID}", h.GetFavorite)
			r.Post("/{productID}/toggle", h.ToggleFavorite)
		})
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	healthy, deps := h.health.Report()
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{"status": status, "dependencies": deps})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("http: failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps domain errors onto HTTP status codes.
func handleError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrMalformedSelection):
		status, code = http.StatusUnprocessableEntity, "malformed_selection"
	case errors.Is(err, domain.ErrUnresolved):
		status, code = http.StatusUnprocessableEntity, "unresolved"
	case errors.Is(err, domain.ErrVariantUnavailable):
		status, code = http.StatusConflict, "variant_unavailable"
	case errors.Is(err, domain.ErrInvalidLineItem):
		status, code = http.StatusBadRequest, "invalid_line_item"
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrBusy):
		status, code = http.StatusConflict, "busy"
	case errors.Is(err, domain.ErrUnsettled):
		status, code = http.StatusConflict, "unsettled"
	case errors.Is(err, domain.ErrTrackerClosed):
		status, code = http.StatusConflict, "tracker_closed"
	case errors.Is(err, domain.ErrInvalidCursor):
		status, code = http.StatusBadRequest, "invalid_cursor"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		// the client went away; nobody reads this
		status, code = statusClientClosedRequest, "canceled"
	case errors.Is(err, domain.ErrInvalidSnapshot), errors.Is(err, domain.ErrBackendFailure):
		status, code = http.StatusBadGateway, "backend_failure"
	default:
		log.Printf("http: unexpected error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// pathParam returns an unescaped URL parameter, so IDs such as
// "gid://shopify/Product/1" can travel percent-encoded in a single segment.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}
