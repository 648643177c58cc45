// Package bridge exposes the request core to a local UI over HTTP.
// It is the sole crossing point between the interface process and the
// network: the UI composes form state, the bridge executes and answers
// with uniform envelopes. CORS headers are included so a dev-served
// frontend can talk to it directly.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/request"
	"github.com/requill/requill/internal/errdef"
	"github.com/requill/requill/internal/export"
	"github.com/requill/requill/internal/session"
)

// Option configures the server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

// Server is the local bridge server.
type Server struct {
	sess       *session.Session
	logger     *zap.Logger
	addr       string
	corsOrigin string
	hub        *eventHub
}

// New creates a bridge server around a session. The server registers
// itself as the session's result listener so asynchronous outcomes
// reach connected UI clients over the event socket.
func New(sess *session.Session, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sess:       sess,
		logger:     logger,
		addr:       "127.0.0.1:7191",
		corsOrigin: "*",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newEventHub(logger)
	sess.SetListener(s.onResult)
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the bridge's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/send", s.handleSend)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleHistoryClear)
	mux.HandleFunc("GET /api/history/{id}/restore", s.handleRestore)
	mux.HandleFunc("GET /api/export/response", s.handleExport)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return s.withCORS(mux)
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("bridge listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleExecute runs the full flow synchronously and answers with the
// uniform response shape: {status_code, headers, body, duration_ms}.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var form request.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, errdef.Wrap(errdef.CodeInternal, err, "decoding request"))
		return
	}

	env, err := s.sess.Do(r.Context(), form)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, export.Full(env))
}

// handleSend dispatches asynchronously; the result arrives on the
// event socket.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var form request.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, errdef.Wrap(errdef.CodeInternal, err, "decoding request"))
		return
	}

	id := s.sess.Send(form)
	s.hub.broadcast(Event{Type: EventStarted, ID: id, Method: form.Method, URL: form.URL})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.sess.CancelActive()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	var entries []history.Entry
	if r.URL.Query().Get("fuzzy") == "1" {
		entries = s.sess.History().Fuzzy(query)
	} else {
		entries = s.sess.History().Search(query)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.History().Clear(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.sess.History().Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Code:    "not_found",
			Message: "history entry not found",
		}})
		return
	}
	s.writeJSON(w, http.StatusOK, history.Restore(entry))
}

// handleExport serves the last response in the requested shape:
// mode=body|full, format=json|text.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	env := s.sess.LastResponse()
	if env == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Code:    "not_found",
			Message: "no response to export",
		}})
		return
	}

	mode := r.URL.Query().Get("mode")
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if mode == "body" {
			w.Write([]byte(env.RawText))
			return
		}
		w.Write([]byte(export.Text(env)))
		return
	}

	var payload any = export.Full(env)
	if mode == "body" {
		payload = export.Body(env)
	}
	data, err := export.JSON(payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the error taxonomy onto HTTP statuses: validation
// failures are the client's to fix, transport failures are upstream.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errdef.CodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case errdef.IsValidation(err):
		status = http.StatusBadRequest
	case code == errdef.CodeTimeout:
		status = http.StatusGatewayTimeout
	case code == errdef.CodeNetwork:
		status = http.StatusBadGateway
	case code == errdef.CodeCancelled:
		// Non-standard but widely used "client closed request".
		status = 499
	}

	s.logger.Debug("bridge error",
		zap.String("code", string(code)),
		zap.Int("status", status),
		zap.Error(err),
	)
	s.writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: err.Error(),
	}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

// onResult forwards session outcomes to the event socket. Superseded
// calls never reach this point; explicit cancellations surface as a
// cancelled event, not an error.
func (s *Server) onResult(res session.Result) {
	switch {
	case res.Err == nil && res.Envelope != nil:
		full := export.Full(res.Envelope)
		s.hub.broadcast(Event{
			Type:       EventCompleted,
			ID:         res.ID,
			Method:     res.Form.Method,
			URL:        res.Form.URL,
			StatusCode: res.Envelope.StatusCode,
			DurationMs: res.Envelope.DurationMs(),
			Response:   &full,
		})
	case errdef.IsCode(res.Err, errdef.CodeCancelled):
		s.hub.broadcast(Event{Type: EventCancelled, ID: res.ID})
	default:
		s.hub.broadcast(Event{
			Type:    EventFailed,
			ID:      res.ID,
			Method:  res.Form.Method,
			URL:     res.Form.URL,
			Code:    string(errdef.CodeOf(res.Err)),
			Message: res.Err.Error(),
		})
	}
}
