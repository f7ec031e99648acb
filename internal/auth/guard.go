// Package auth establishes who is calling. Logins are checked against the
// users file and remembered in a signed session cookie.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/pinhash"
	"permit-board/internal/users"
)

var (
	ErrMissingCredentials = errors.New("missing user/pin")
	ErrInvalidLogin       = errors.New("invalid login")
	ErrThrottled          = errors.New("too many login attempts")
	ErrUnauthenticated    = errors.New("unauthorized")
)

// DefaultSessionTTL is how long a login is remembered.
const DefaultSessionTTL = 8 * time.Hour

type Config struct {
	Users        *users.Directory
	Secret       []byte
	SessionTTL   time.Duration
	SecureCookie bool
	// LoginPerMinute and LoginBurst shape the per-client login throttle.
	// LoginPerMinute <= 0 disables it.
	LoginPerMinute float64
	LoginBurst     int
	Clock          clock.Clock
	Logger         pslog.Logger
}

type Guard struct {
	users    *users.Directory
	sessions *SessionCodec
	throttle *Throttle
	logger   pslog.Logger

	verify    func(encoded, pin string) (bool, error)
	dummyHash func() string
}

// unknownUserHash is checked against when the user does not exist so that
// unknown and known users cost the same key derivation.
var unknownUserHash = sync.OnceValue(func() string {
	hash, err := pinhash.Generate("000000", pinhash.DefaultIterations)
	if err != nil {
		return ""
	}
	return hash
})

func NewGuard(cfg Config) (*Guard, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: users directory required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	sessions, err := NewSessionCodec(cfg.Secret, ttl, cfg.SecureCookie, cfg.Clock)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Guard{
		users:    cfg.Users,
		sessions: sessions,
		throttle: NewThrottle(cfg.LoginPerMinute, cfg.LoginBurst, cfg.Clock),
		logger:   logger,

		verify:    pinhash.Verify,
		dummyHash: unknownUserHash,
	}, nil
}

func (g *Guard) Sessions() *SessionCodec { return g.sessions }

// Authenticate checks user and pin. Every failed check past the throttle
// returns ErrInvalidLogin.
func (g *Guard) Authenticate(ctx context.Context, clientKey, user, pin string) (modal.Identity, error) {
	user = strings.TrimSpace(user)
	pin = strings.TrimSpace(pin)
	if user == "" || pin == "" {
		return modal.Identity{}, ErrMissingCredentials
	}
	if !g.throttle.Allow(clientKey) {
		g.logger.Warn("auth.login.throttled", "client", clientKey, "user", user)
		return modal.Identity{}, ErrThrottled
	}
	if !pinhash.ValidPIN(pin) {
		g.logger.Debug("auth.login.rejected", "user", user, "reason", "malformed_pin")
		return modal.Identity{}, ErrInvalidLogin
	}
	rec, ok := g.users.Lookup(ctx, user)
	if !ok {
		_, _ = g.verify(g.dummyHash(), pin)
		g.logger.Debug("auth.login.rejected", "user", user, "reason", "unknown_user")
		return modal.Identity{}, ErrInvalidLogin
	}
	match, err := g.verify(rec.PinHash, pin)
	if err != nil {
		g.logger.Warn("auth.login.bad_hash", "user", user, "error", err)
		return modal.Identity{}, ErrInvalidLogin
	}
	if !match {
		g.logger.Debug("auth.login.rejected", "user", user, "reason", "pin_mismatch")
		return modal.Identity{}, ErrInvalidLogin
	}
	return modal.Identity{User: rec.User, Role: rec.ResolvedRole()}, nil
}

// Identify resolves the caller of r from its session cookie. The role is read
// from the users file on every call.
func (g *Guard) Identify(r *http.Request) (modal.Identity, error) {
	user, ok := g.sessions.User(r)
	if !ok {
		return modal.Identity{}, ErrUnauthenticated
	}
	return modal.Identity{User: user, Role: g.users.Role(r.Context(), user)}, nil
}
