package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/duplicates"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "status", Message: "unknown value"}
	assert.Equal(t, "validation error: status - unknown value", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &ErrValidation{Field: "f"}, want: http.StatusBadRequest},
		{name: "no selection", err: workflow.ErrNoSelection, want: http.StatusBadRequest},
		{name: "empty input", err: duplicates.ErrEmptyInput, want: http.StatusBadRequest},
		{name: "bad resolutions", err: &duplicates.ResolutionError{Missing: []string{"a.com"}}, want: http.StatusBadRequest},
		{name: "session", err: &ErrSessionNotFound{ProjectID: "p1"}, want: http.StatusNotFound},
		{name: "journal row", err: fmt.Errorf("get: %w", db.ErrJobNotFound), want: http.StatusNotFound},
		{name: "busy", err: workflow.ErrBusy, want: http.StatusConflict},
		{name: "job in flight", err: bulkjob.ErrJobInFlight, want: http.StatusConflict},
		{name: "no pending", err: duplicates.ErrNoPendingSubmission, want: http.StatusConflict},
		{name: "closed", err: workflow.ErrClosed, want: http.StatusGone},
		{name: "no journal", err: ErrJournalDisabled, want: http.StatusServiceUnavailable},
		{name: "backend 404", err: &api.Error{Op: "get", StatusCode: 404}, want: http.StatusNotFound},
		{name: "backend 500", err: &api.Error{Op: "get", StatusCode: 500}, want: http.StatusBadGateway},
		{name: "backend down", err: &api.Error{Op: "get", Cause: errors.New("refused")}, want: http.StatusBadGateway},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
