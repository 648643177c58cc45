// Package session orchestrates the request flow: it normalizes form
// state, dispatches execution, assembles history entries from the
// outcome, and owns cancellation of superseded calls.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/requill/requill/internal/core/executor"
	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/request"
)

// Result is the outcome of an asynchronous send.
type Result struct {
	ID       string
	Form     request.FormState
	Envelope *executor.Envelope
	Err      error
}

// Listener receives completed send results. Superseded calls are
// discarded before the listener ever sees them.
type Listener func(Result)

// Session ties the executor and the history store together for one
// interactive session.
type Session struct {
	exec    *executor.Client
	hist    *history.Store
	logger  *zap.Logger
	timeout time.Duration

	mu         sync.Mutex
	listener   Listener
	generation uint64
	cancel     context.CancelFunc
	last       *executor.Envelope
}

// New creates a session. A zero timeout falls back to the executor
// default.
func New(exec *executor.Client, hist *history.Store, logger *zap.Logger, timeout time.Duration) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = executor.DefaultTimeout
	}
	return &Session{exec: exec, hist: hist, logger: logger, timeout: timeout}
}

// SetListener registers the callback for asynchronous results.
func (s *Session) SetListener(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Do runs the full flow synchronously: compose, execute, record.
// Validation and body-parse failures return before any network I/O
// with no side effects; an envelope-producing execution is appended to
// history whatever its status code. A history persistence failure is
// logged, never propagated.
func (s *Session) Do(ctx context.Context, form request.FormState) (*executor.Envelope, error) {
	desc, err := request.Compose(form)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env, err := s.exec.Execute(ctx, desc)
	if err != nil {
		return nil, err
	}

	s.record(form, env)
	return env, nil
}

// Send dispatches the flow on a worker goroutine and returns a call
// id immediately. Submitting a new call cancels and supersedes any
// outstanding one: the superseded result, whenever it arrives, is
// discarded rather than overwriting newer state or producing a
// duplicate history entry.
func (s *Session) Send(form request.FormState) string {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	id := uuid.NewString()
	go func() {
		defer cancel()

		res := Result{ID: id, Form: form}
		desc, err := request.Compose(form)
		if err != nil {
			res.Err = err
			s.finish(gen, res)
			return
		}

		execCtx, execCancel := context.WithTimeout(ctx, s.timeout)
		defer execCancel()

		env, err := s.exec.Execute(execCtx, desc)
		res.Envelope = env
		res.Err = err
		s.finish(gen, res)
	}()
	return id
}

// CancelActive abandons the outstanding call, if any.
func (s *Session) CancelActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// LastResponse returns the most recent envelope, for export.
func (s *Session) LastResponse() *executor.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// History exposes the underlying store for queries.
func (s *Session) History() *history.Store {
	return s.hist
}

// finish delivers a result unless the call was superseded in the
// meantime.
func (s *Session) finish(gen uint64, res Result) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded result", zap.String("id", res.ID))
		return
	}
	s.cancel = nil
	listener := s.listener
	s.mu.Unlock()

	if res.Err == nil && res.Envelope != nil {
		s.record(res.Form, res.Envelope)
	}
	if listener != nil {
		listener(res)
	}
}

// record appends the history entry for a completed execution.
func (s *Session) record(form request.FormState, env *executor.Envelope) {
	s.mu.Lock()
	s.last = env
	s.mu.Unlock()

	entry := history.NewEntry(form, env.StatusCode, env.DurationMs())
	if err := s.hist.Append(entry); err != nil {
		// The request flow still completes; only the history side
		// effect is lost.
		s.logger.Warn("history not persisted", zap.Error(err))
	}
}
