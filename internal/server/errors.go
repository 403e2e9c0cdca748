package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/duplicates"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/triage"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrSessionNotFound indicates no open session for a project.
type ErrSessionNotFound struct {
	ProjectID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("no open session for project %s", e.ProjectID)
}

// ErrJournalDisabled is returned by history routes without a database.
var ErrJournalDisabled = errors.New("job history requires a database")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		notFound   *ErrSessionNotFound
		resolution *duplicates.ResolutionError
		apiErr     *api.Error
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &resolution):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, db.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNoSelection),
		errors.Is(err, workflow.ErrNoKeywords),
		errors.Is(err, bulkjob.ErrNoDomains),
		errors.Is(err, duplicates.ErrEmptyInput),
		errors.Is(err, triage.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, bulkjob.ErrJobInFlight),
		errors.Is(err, duplicates.ErrAwaitingResolution),
		errors.Is(err, duplicates.ErrNoPendingSubmission),
		errors.Is(err, duplicates.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrClosed), errors.Is(err, triage.ErrClosed):
		return http.StatusGone
	case errors.Is(err, ErrJournalDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
