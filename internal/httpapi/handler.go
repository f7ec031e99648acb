// Package httpapi exposes the job board over HTTP/JSON and serves the
// front-end files from the web root.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"pkt.systems/pslog"

	"permit-board/internal/auth"
	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/registry"
)

const maxBodyBytes = 64 << 10

type Config struct {
	Registry *registry.Registry
	Guard    *auth.Guard
	Clock    clock.Clock
	Logger   pslog.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
	// Static serves everything outside /api. Nil leaves those paths to the router.
	Static http.Handler
}

type Handler struct {
	registry *registry.Registry
	guard    *auth.Guard
	clock    clock.Clock
	logger   pslog.Logger
	metrics  *Metrics
	static   http.Handler
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type identityFunc func(http.ResponseWriter, *http.Request, modal.Identity) error

func New(cfg Config) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("httpapi: registry required")
	}
	if cfg.Guard == nil {
		return nil, errors.New("httpapi: auth guard required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Handler{
		registry: cfg.Registry,
		guard:    cfg.Guard,
		clock:    clock.OrReal(cfg.Clock),
		logger:   logger,
		metrics:  cfg.Metrics,
		static:   cfg.Static,
	}, nil
}

// Register mounts the API routes, and the static file server when configured.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/login", h.wrap("login", h.handleLogin))
		r.Method(http.MethodPost, "/logout", h.wrap("logout", h.handleLogout))
		r.Method(http.MethodGet, "/me", h.wrap("me", h.authenticated(h.handleMe)))
		r.Method(http.MethodGet, "/status", h.wrap("status", h.handleStatus))
		r.Method(http.MethodPost, "/config", h.wrap("config", h.authenticated(h.handleConfig)))
		r.Method(http.MethodPost, "/open", h.wrap("open", h.authenticated(h.handleOpen)))
		r.Method(http.MethodPost, "/close", h.wrap("close", h.authenticated(h.handleClose)))
		r.NotFound(h.wrap("api.not_found", func(http.ResponseWriter, *http.Request) error {
			return httpError{Status: http.StatusNotFound, Code: "not_found", Detail: "not found"}
		}).ServeHTTP)
	})
	if h.static != nil {
		r.Method(http.MethodGet, "/*", h.static)
		r.Method(http.MethodHead, "/*", h.static)
	}
}

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	sys := "api.http." + operation
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		logger := h.logger.With(
			"sys", sys,
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := pslog.ContextWithLogger(r.Context(), logger)
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-Id", reqID)
		if err := fn(ww, r); err != nil {
			h.handleError(ctx, ww, err)
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.observeRequest(operation, status, time.Since(start))
		logger.Debug("http.request.done", "status", status, "elapsed", time.Since(start))
	})
}

// authenticated resolves the caller before fn runs; requests without a valid
// session never reach fn.
func (h *Handler) authenticated(fn identityFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		caller, err := h.guard.Identify(r)
		if err != nil {
			return err
		}
		return fn(w, r, caller)
	}
}

type httpError struct {
	Status int
	Code   string
	Detail string
}

func (e httpError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// classify maps domain errors onto the HTTP error taxonomy. The second result
// is false for failures the caller must not see.
func classify(err error) (httpError, bool) {
	var httpErr httpError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	var verr *registry.ValidationError
	if errors.As(err, &verr) {
		code := "invalid_field"
		if verr.Missing {
			code = "missing_field"
		}
		return httpError{Status: http.StatusBadRequest, Code: code, Detail: verr.Error()}, true
	}
	var ferr *registry.ForbiddenError
	if errors.As(err, &ferr) {
		return httpError{Status: http.StatusForbidden, Code: "forbidden", Detail: ferr.Error()}, true
	}
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return httpError{Status: http.StatusBadRequest, Code: "missing_credentials", Detail: err.Error()}, true
	case errors.Is(err, auth.ErrInvalidLogin):
		return httpError{Status: http.StatusUnauthorized, Code: "invalid_login", Detail: err.Error()}, true
	case errors.Is(err, auth.ErrThrottled):
		return httpError{Status: http.StatusTooManyRequests, Code: "throttled", Detail: err.Error()}, true
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, registry.ErrUnauthorized):
		return httpError{Status: http.StatusUnauthorized, Code: "unauthorized", Detail: "unauthorized"}, true
	case errors.Is(err, registry.ErrDuplicate):
		return httpError{Status: http.StatusConflict, Code: "duplicate", Detail: err.Error()}, true
	case errors.Is(err, registry.ErrDuplicateID):
		return httpError{Status: http.StatusConflict, Code: "duplicate_id", Detail: err.Error()}, true
	case errors.Is(err, registry.ErrNotFound):
		return httpError{Status: http.StatusNotFound, Code: "not_found", Detail: err.Error()}, true
	}
	return httpError{}, false
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := requestLogger(ctx)
	if httpErr, ok := classify(err); ok {
		logger.Debug("http.request.failure",
			"status", httpErr.Status,
			"code", httpErr.Code,
			"detail", httpErr.Detail,
		)
		if httpErr.Status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "60")
		}
		writeJSON(w, httpErr.Status, errorResponse{Code: httpErr.Code, Error: httpErr.Detail})
		return
	}
	logger.Error("http.request.error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:  "internal_error",
		Error: "internal server error",
	})
}

func requestLogger(ctx context.Context) pslog.Logger {
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return pslog.NoopLogger()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// clientKey identifies the remote peer for login throttling.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
