package httpapi

import (
	"errors"
	"net/http"

	"permit-board/internal/auth"
	"permit-board/internal/modal"
	"permit-board/internal/registry"
)

type loginResponse struct {
	OK   bool   `json:"ok"`
	User string `json:"user"`
}

type meResponse struct {
	OK   bool       `json:"ok"`
	User string     `json:"user"`
	Role modal.Role `json:"role"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	body := decodePayload(r)
	identity, err := h.guard.Authenticate(r.Context(), clientKey(r), body.String("user"), body.String("pin"))
	if err != nil {
		h.metrics.observeLogin(loginOutcome(err))
		return err
	}
	if err := h.guard.Sessions().Issue(w, identity.User); err != nil {
		return err
	}
	h.metrics.observeLogin("success")
	requestLogger(r.Context()).Info("auth.login.success", "user", identity.User, "role", identity.Role)
	writeJSON(w, http.StatusOK, loginResponse{OK: true, User: identity.User})
	return nil
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return "missing"
	case errors.Is(err, auth.ErrThrottled):
		return "throttled"
	case errors.Is(err, auth.ErrInvalidLogin):
		return "invalid"
	}
	return "error"
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if caller, err := h.guard.Identify(r); err == nil {
		requestLogger(r.Context()).Info("auth.logout", "user", caller.User)
	}
	h.guard.Sessions().Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
	return nil
}

func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, caller modal.Identity) error {
	writeJSON(w, http.StatusOK, meResponse{OK: true, User: caller.User, Role: caller.Role})
	return nil
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) error {
	state, err := h.registry.Status(r.Context())
	if err != nil {
		return err
	}
	h.writeState(w, state)
	return nil
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request, caller modal.Identity) error {
	body := decodePayload(r)
	var minutes *int
	if v, ok := body.WholeNumber("overdueMinutes"); ok {
		minutes = &v
	}
	state, err := h.registry.Configure(r.Context(), caller, minutes)
	if err != nil {
		return err
	}
	h.writeState(w, state)
	return nil
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request, caller modal.Identity) error {
	body := decodePayload(r)
	params := registry.OpenParams{
		ID:           body.JobID("id"),
		RiskType:     body.String("riskType"),
		Department:   body.String("department"),
		Point:        body.String("point"),
		Control:      body.String("control"),
		Details:      body.String("details"),
		StartedAtISO: body.String("startedAtISO"),
	}
	if v, ok := body.WholeNumber("overdueMinutes"); ok {
		params.OverdueMinutes = &v
	}
	state, err := h.registry.Open(r.Context(), caller, params)
	if err != nil {
		return err
	}
	h.writeState(w, state)
	return nil
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, caller modal.Identity) error {
	body := decodePayload(r)
	state, err := h.registry.Close(r.Context(), caller, body.JobID("id"))
	if err != nil {
		return err
	}
	h.writeState(w, state)
	return nil
}

func (h *Handler) writeState(w http.ResponseWriter, state modal.AppState) {
	h.metrics.observeBoard(state, h.clock.Now())
	writeJSON(w, http.StatusOK, state)
}
