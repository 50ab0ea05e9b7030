package webhooks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chantierops/signalement/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Error: ErrInsecureURL, Status: http.StatusBadRequest},
	{Error: ErrNoEventPatterns, Status: http.StatusBadRequest},
	{Error: ErrInvalidEventPattern, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for webhook subscription management.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new webhooks handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers webhook routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", h.CreateSubscription)
		r.Get("/", h.ListSubscriptions)
		r.Get("/{id}", h.GetSubscription)
		r.Delete("/{id}", h.DeleteSubscription)
		r.Post("/{id}/enable", h.EnableSubscription)
		r.Post("/{id}/test", h.TestSubscription)
		r.Get("/{id}/deliveries", h.ListDeliveries)
	})
}

// CreateSubscriptionRequest represents the request body for registering a
// webhook endpoint.
type CreateSubscriptionRequest struct {
	URL           string   `json:"url" validate:"required,url"`
	EventPatterns []string `json:"event_patterns" validate:"required,min=1"`
	Description   string   `json:"description" validate:"max=500"`
}

// CreateSubscription handles POST /webhooks.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), req.URL, req.Description, req.EventPatterns)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, created)
}

// ListSubscriptions handles GET /webhooks.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, subs)
}

// GetSubscription handles GET /webhooks/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /webhooks/{id}.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableSubscription handles POST /webhooks/{id}/enable.
func (h *Handler) EnableSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Enable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, sub)
}

// TestSubscription handles POST /webhooks/{id}/test.
func (h *Handler) TestSubscription(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Test(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, rec)
}

// ListDeliveries handles GET /webhooks/{id}/deliveries?limit=...
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.service.Deliveries(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, records)
}
