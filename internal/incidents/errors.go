package incidents

import (
	"errors"
	"fmt"

	"github.com/chantierops/signalement/internal/domain"
)

// Package errors.
var (
	ErrIncidentNotFound       = errors.New("incident not found")
	ErrInvalidTransition      = errors.New("invalid incident transition")
	ErrEmptyTitle             = errors.New("title is required")
	ErrInvalidPriority        = errors.New("invalid priority")
	ErrEmptyResolutionComment = errors.New("resolution comment is required")
	ErrEmptyResponseContent   = errors.New("response content is required")

	// ErrStatusConflict is returned by the repository when a guarded update
	// matched no row: either the incident is gone or another caller changed
	// the status first. The service re-reads to tell the two apart.
	ErrStatusConflict = errors.New("incident status precondition failed")
)

// TransitionError reports an illegal or lost lifecycle transition, carrying
// the current and requested statuses so the caller can decide what to do.
type TransitionError struct {
	From domain.IncidentStatus
	To   domain.IncidentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition incident from %q to %q", e.From, e.To)
}

// Is makes TransitionError match ErrInvalidTransition in errors.Is checks.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
