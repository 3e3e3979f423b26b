package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"golang.org/x/exp/slog"

	"ewintr.nl/hansard/model"
	"ewintr.nl/hansard/process"
)

// StatusProvider is what the api needs to know about the scheduled runs.
type StatusProvider interface {
	Running() bool
	NextRun() time.Time
	LastReport() (process.RunReport, bool)
	Trigger() error
}

type StreamLister interface {
	List(ctx context.Context, limit int) ([]model.Stream, error)
}

type Server struct {
	apis   map[string]http.Handler
	logger *slog.Logger
}

func NewServer(status StatusProvider, streams StreamLister, logger *slog.Logger) *Server {
	return &Server{
		apis: map[string]http.Handler{
			"status": NewStatusAPI(status, logger),
			"run":    NewRunAPI(status, logger),
			"stream": NewStreamAPI(streams, logger),
		},
		logger: logger,
	}
}

// Handler wraps the server with panic recovery and CORS headers for the given
// origins.
func (s *Server) Handler(origins []string) http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(true),
	)
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"content-type"}),
	)

	return cors(recovery(s))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	originalPath := r.URL.Path
	rec := httptest.NewRecorder() // records the response to be able to mix writing headers and content

	w.Header().Add("Content-Type", "application/json")

	// route to api
	head, tail := ShiftPath(r.URL.Path)
	if len(head) == 0 {
		Index(rec)
		returnResponse(w, rec)
		return
	}
	api, ok := s.apis[head]
	if !ok {
		Error(rec, http.StatusNotFound, "Not found", fmt.Errorf("%s is not a valid path", r.URL.Path))
	} else {
		r.URL.Path = tail
		api.ServeHTTP(rec, r)
	}

	returnResponse(w, rec)
	s.logger.InfoContext(r.Context(), "request served",
		slog.String("method", r.Method),
		slog.String("path", originalPath),
		slog.Int("status", rec.Code),
	)
}

func returnResponse(w http.ResponseWriter, rec *httptest.ResponseRecorder) {
	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	w.Write(rec.Body.Bytes())
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("recovered from panic in handler", slog.String("panic", strings.TrimSpace(fmt.Sprintln(v...))))
}

// ShiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash and
// tail will always be a rooted path without trailing slash.
// See https://blog.merovius.de/posts/2017-06-18-how-not-to-use-an-http-router/
func ShiftPath(p string) (string, string) {
	p = path.Clean("/" + p)

	i := strings.Index(p[1:], "/") + 1
	if i <= 0 {
		return p[1:], "/"
	}
	return p[1:i], p[i:]
}
