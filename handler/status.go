package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/process"
)

type StatusAPI struct {
	status StatusProvider
	logger *slog.Logger
}

func NewStatusAPI(status StatusProvider, logger *slog.Logger) *StatusAPI {
	return &StatusAPI{
		status: status,
		logger: logger,
	}
}

func (s *StatusAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, _ := ShiftPath(r.URL.Path)
	if r.Method != http.MethodGet || sub != "" {
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the status api", r.Method, sub))
		return
	}

	resp := struct {
		Healthy bool               `json:"healthy"`
		Running bool               `json:"running"`
		NextRun *time.Time         `json:"next_run,omitempty"`
		LastRun *process.RunReport `json:"last_run,omitempty"`
	}{
		Healthy: true,
		Running: s.status.Running(),
	}
	if next := s.status.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	if last, ok := s.status.LastReport(); ok {
		resp.LastRun = &last
		resp.Healthy = last.Error == ""
	}

	JSON(w, http.StatusOK, resp)
}

// RunAPI starts a run outside of the schedule.
type RunAPI struct {
	status StatusProvider
	logger *slog.Logger
}

func NewRunAPI(status StatusProvider, logger *slog.Logger) *RunAPI {
	return &RunAPI{
		status: status,
		logger: logger,
	}
}

func (a *RunAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, _ := ShiftPath(r.URL.Path)
	if r.Method != http.MethodPost || sub != "" {
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the run api", r.Method, sub))
		return
	}

	err := a.status.Trigger()
	switch {
	case errors.Is(err, process.ErrRunInProgress):
		Error(w, http.StatusConflict, "run already in progress", err)
	case err != nil:
		a.logger.ErrorContext(r.Context(), "could not trigger run", slog.String("err", err.Error()))
		Error(w, http.StatusInternalServerError, "could not trigger run", err)
	default:
		a.logger.InfoContext(r.Context(), "run triggered")
		Message(w, http.StatusAccepted, "run triggered")
	}
}
