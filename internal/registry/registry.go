// Package registry holds the job rules. A department/point/risk slot holds at
// most one open job, and only its owner or an admin may close it.
package registry

import (
	"context"
	"strconv"
	"strings"

	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/store"
)

type Registry struct {
	store  *store.Store
	clock  clock.Clock
	logger pslog.Logger
}

func New(st *store.Store, c clock.Clock, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Registry{store: st, clock: clock.OrReal(c), logger: logger}
}

// OpenParams is a request to open a job. Requester and owner always come
// from the caller identity, never from here.
type OpenParams struct {
	ID           modal.JobID
	RiskType     string
	Department   string
	Point        string
	Control      string
	Details      string
	StartedAtISO string
	// OverdueMinutes, when set, replaces the board threshold after clamping.
	OverdueMinutes *int
}

func (p OpenParams) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"riskType", p.RiskType},
		{"department", p.Department},
		{"point", p.Point},
		{"startedAtISO", p.StartedAtISO},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return missing(r.field)
		}
	}
	if !modal.RiskType(p.RiskType).Valid() {
		return invalid("riskType")
	}
	if !modal.ValidDepartment(p.Department) {
		return invalid("department")
	}
	return nil
}

// Open records a new job for caller and returns the updated board.
func (r *Registry) Open(ctx context.Context, caller modal.Identity, p OpenParams) (modal.AppState, error) {
	if caller.User == "" {
		return modal.AppState{}, ErrUnauthorized
	}
	if err := p.validate(); err != nil {
		return modal.AppState{}, err
	}
	risk := modal.RiskType(p.RiskType)
	point := strings.TrimSpace(p.Point)

	var job modal.Job
	state, err := r.store.Update(ctx, func(s *modal.AppState) error {
		for _, existing := range s.Jobs {
			if existing.SameSlot(p.Department, point, risk) {
				return ErrDuplicate
			}
		}
		id := modal.JobID(strings.TrimSpace(string(p.ID)))
		if id == "" {
			id = modal.JobID(strconv.FormatInt(r.clock.Now().UnixMilli(), 10))
		}
		if s.FindJob(id) >= 0 {
			return ErrDuplicateID
		}
		if p.OverdueMinutes != nil {
			s.OverdueMinutes = modal.ClampOverdueMinutes(*p.OverdueMinutes)
		}
		job = modal.Job{
			ID:           id,
			RiskType:     risk,
			Department:   p.Department,
			Point:        point,
			Control:      strings.TrimSpace(p.Control),
			Requester:    caller.User,
			OpenedBy:     caller.User,
			Details:      strings.TrimSpace(p.Details),
			StartedAtISO: p.StartedAtISO,
		}
		s.Jobs = append([]modal.Job{job}, s.Jobs...)
		return nil
	})
	if err != nil {
		return modal.AppState{}, err
	}
	r.logger.Info("registry.job.opened",
		"job_id", job.ID,
		"department", job.Department,
		"point", job.Point,
		"risk_type", job.RiskType,
		"user", caller.User,
	)
	return state, nil
}

// Close removes the job with id. Only its owner or an admin may close it.
func (r *Registry) Close(ctx context.Context, caller modal.Identity, id modal.JobID) (modal.AppState, error) {
	if caller.User == "" {
		return modal.AppState{}, ErrUnauthorized
	}
	id = modal.JobID(strings.TrimSpace(string(id)))
	if id == "" {
		return modal.AppState{}, missing("id")
	}
	var closed modal.Job
	state, err := r.store.Update(ctx, func(s *modal.AppState) error {
		idx := s.FindJob(id)
		if idx < 0 {
			return ErrNotFound
		}
		closed = s.Jobs[idx]
		if owner := closed.Owner(); owner != caller.User && !caller.IsAdmin() {
			return &ForbiddenError{Owner: owner}
		}
		s.Jobs = append(s.Jobs[:idx:idx], s.Jobs[idx+1:]...)
		return nil
	})
	if err != nil {
		return modal.AppState{}, err
	}
	r.logger.Info("registry.job.closed",
		"job_id", closed.ID,
		"owner", closed.Owner(),
		"user", caller.User,
		"admin_override", closed.Owner() != caller.User,
	)
	return state, nil
}

// Configure sets the overdue threshold. Admin only; a nil or out of range
// value is rejected after the privilege check.
func (r *Registry) Configure(ctx context.Context, caller modal.Identity, minutes *int) (modal.AppState, error) {
	if caller.User == "" {
		return modal.AppState{}, ErrUnauthorized
	}
	if !caller.IsAdmin() {
		return modal.AppState{}, &ForbiddenError{}
	}
	if minutes == nil || *minutes < modal.MinOverdueMinutes || *minutes > modal.MaxOverdueMinutes {
		return modal.AppState{}, invalid("overdueMinutes")
	}
	state, err := r.store.Update(ctx, func(s *modal.AppState) error {
		s.OverdueMinutes = *minutes
		return nil
	})
	if err != nil {
		return modal.AppState{}, err
	}
	r.logger.Info("registry.config.updated", "overdue_minutes", *minutes, "user", caller.User)
	return state, nil
}

// Status returns the current board.
func (r *Registry) Status(ctx context.Context) (modal.AppState, error) {
	return r.store.Snapshot(ctx)
}
