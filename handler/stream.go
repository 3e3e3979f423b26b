package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/exp/slog"
)

const defaultListLimit = 50

type StreamAPI struct {
	streams StreamLister
	logger  *slog.Logger
}

func NewStreamAPI(streams StreamLister, logger *slog.Logger) *StreamAPI {
	return &StreamAPI{
		streams: streams,
		logger:  logger,
	}
}

func (s *StreamAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	streamID, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && streamID == "":
		s.List(w, r)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the stream api", r.Method, streamID))
	}
}

func (s *StreamAPI) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "invalid limit", fmt.Errorf("limit must be a positive number, got %q", l))
			return
		}
		limit = n
	}

	streams, err := s.streams.List(r.Context(), limit)
	if err != nil {
		s.returnErr(r.Context(), w, http.StatusInternalServerError, "could not list streams", err)
		return
	}

	type respStream struct {
		ID        string    `json:"id"`
		URL       string    `json:"url"`
		Title     string    `json:"title"`
		Category  string    `json:"category"`
		ViewCount string    `json:"view_count"`
		Streamed  string    `json:"streamed_date"`
		Published time.Time `json:"published_at"`
		Duration  string    `json:"duration"`
		Summary   string    `json:"summary"`
	}
	resp := make([]respStream, 0, len(streams))
	for _, st := range streams {
		resp = append(resp, respStream{
			ID:        st.ID,
			URL:       st.URL(),
			Title:     st.Title,
			Category:  string(st.Category()),
			ViewCount: st.ViewCount,
			Streamed:  st.RawPublishedAt,
			Published: st.PublishedAt,
			Duration:  st.Duration,
			Summary:   st.Summary,
		})
	}

	JSON(w, http.StatusOK, resp)
}

func (s *StreamAPI) returnErr(ctx context.Context, w http.ResponseWriter, status int, message string, err error, details ...any) {
	s.logger.ErrorContext(ctx, message, slog.String("err", err.Error()), slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}

