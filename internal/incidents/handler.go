package incidents

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrEmptyTitle, Status: http.StatusBadRequest, Message: "title is required"},
	{Error: ErrInvalidPriority, Status: http.StatusBadRequest},
	{Error: ErrEmptyResolutionComment, Status: http.StatusBadRequest, Message: "resolution comment is required"},
	{Error: ErrEmptyResponseContent, Status: http.StatusBadRequest, Message: "response content is required"},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.CreateIncident)
		r.Get("/search", h.SearchIncidents)
		r.Get("/overdue", h.ListOverdue)
		r.Get("/{id}", h.GetIncident)
		r.Post("/{id}/start", h.StartIncident)
		r.Post("/{id}/assign", h.AssignIncident)
		r.Post("/{id}/resolve", h.ResolveIncident)
		r.Post("/{id}/close", h.CloseIncident)
		r.Post("/{id}/reopen", h.ReopenIncident)
		r.Get("/{id}/responses", h.ListResponses)
		r.Post("/{id}/responses", h.AddResponse)
	})

	r.Get("/chantiers/{chantierID}/incidents", h.ListIncidents)
}

// CreateIncidentRequest represents the request body for reporting an incident.
type CreateIncidentRequest struct {
	ChantierID            string     `json:"chantier_id" validate:"required"`
	Title                 string     `json:"title" validate:"required,max=200"`
	Description           string     `json:"description" validate:"max=5000"`
	Location              *string    `json:"location,omitempty"`
	PhotoURL              *string    `json:"photo_url,omitempty" validate:"omitempty,url"`
	Priority              string     `json:"priority" validate:"required,oneof=critical high medium low"`
	AssignedTo            *string    `json:"assigned_to,omitempty"`
	DesiredResolutionDate *time.Time `json:"desired_resolution_date,omitempty"`
}

// ResolveIncidentRequest represents the request body for resolving.
type ResolveIncidentRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// AssignIncidentRequest represents the request body for assignment.
type AssignIncidentRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// AddResponseRequest represents the request body for replying.
type AddResponseRequest struct {
	Content  string  `json:"content" validate:"required,max=5000"`
	PhotoURL *string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	view, err := h.service.Create(r.Context(), CreateInput{
		ChantierID:            req.ChantierID,
		Title:                 req.Title,
		Description:           req.Description,
		Location:              req.Location,
		PhotoURL:              req.PhotoURL,
		Priority:              domain.IncidentPriority(req.Priority),
		AssignedTo:            req.AssignedTo,
		DesiredResolutionDate: req.DesiredResolutionDate,
	}, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, view)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// ListIncidents handles GET /chantiers/{chantierID}/incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filters := Filters{ChantierID: chi.URLParam(r, "chantierID")}

	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filters.Status = &status
	}
	if v := r.URL.Query().Get("priority"); v != "" {
		priority := domain.IncidentPriority(v)
		if !priority.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid priority filter")
			return
		}
		filters.Priority = &priority
	}

	views, err := h.service.List(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, views)
}

// SearchIncidents handles GET /incidents/search?q=...
func (h *Handler) SearchIncidents(w http.ResponseWriter, r *http.Request) {
	filters := Filters{ChantierID: r.URL.Query().Get("chantier_id")}

	views, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, views)
}

// ListOverdue handles GET /incidents/overdue.
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListOverdue(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, views)
}

// StartIncident handles POST /incidents/{id}/start.
func (h *Handler) StartIncident(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// AssignIncident handles POST /incidents/{id}/assign.
func (h *Handler) AssignIncident(w http.ResponseWriter, r *http.Request) {
	var req AssignIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	view, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// ResolveIncident handles POST /incidents/{id}/resolve.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	var req ResolveIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	view, err := h.service.MarkResolved(r.Context(), chi.URLParam(r, "id"), req.Comment, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// CloseIncident handles POST /incidents/{id}/close.
func (h *Handler) CloseIncident(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// ReopenIncident handles POST /incidents/{id}/reopen.
func (h *Handler) ReopenIncident(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reopen(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, view)
}

// AddResponse handles POST /incidents/{id}/responses.
func (h *Handler) AddResponse(w http.ResponseWriter, r *http.Request) {
	var req AddResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	resp, err := h.service.AddResponse(r.Context(), AddResponseInput{
		IncidentID: chi.URLParam(r, "id"),
		Content:    req.Content,
		PhotoURL:   req.PhotoURL,
	}, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, resp)
}

// ListResponses handles GET /incidents/{id}/responses.
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.service.ListResponses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, responses)
}
