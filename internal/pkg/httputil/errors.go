package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/chantierops/signalement/internal/pkg/ctxlog"
)

// ErrorMapping pairs a sentinel error with the HTTP response it produces.
type ErrorMapping struct {
	Error  error
	Status int
	// Message overrides err.Error() in the response body when set.
	Message string
}

// HandleError resolves err against the mappings and writes the matching
// response. Unmapped errors are logged and reported as a plain 500 so
// internals never leak to clients.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
