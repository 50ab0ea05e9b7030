package stats

import (
	"net/http"
	"time"

	"github.com/chantierops/signalement/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for incident statistics.
type Handler struct {
	service *Service
}

// NewHandler creates a new statistics handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers statistics routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.GetStats)
}

// GetStats handles GET /stats?chantier_id=&from=&to=.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	filter := Filter{ChantierID: r.URL.Query().Get("chantier_id")}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid from date, expected RFC 3339")
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid to date, expected RFC 3339")
			return
		}
		filter.To = &t
	}

	summary, err := h.service.Summarize(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}
