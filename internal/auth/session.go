package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"permit-board/internal/clock"
)

const (
	// CookieName is the session cookie set by login.
	CookieName = "permit_session"
	issuer     = "permit-board"
)

// SessionCodec signs and verifies the session cookie. The cookie is an HS256
// JWT whose subject is the user name; nothing is kept server side.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	secure bool
	clock  clock.Clock
}

func NewSessionCodec(secret []byte, ttl time.Duration, secure bool, c clock.Clock) (*SessionCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &SessionCodec{secret: secret, ttl: ttl, secure: secure, clock: clock.OrReal(c)}, nil
}

func (s *SessionCodec) TTL() time.Duration { return s.ttl }

// Encode returns a signed token for user valid for the configured TTL.
func (s *SessionCodec) Encode(user string) (string, error) {
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Decode verifies token and returns the user it was issued to.
func (s *SessionCodec) Decode(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("session has no subject")
	}
	return claims.Subject, nil
}

// Issue writes a session cookie for user.
func (s *SessionCodec) Issue(w http.ResponseWriter, user string) error {
	token, err := s.Encode(user)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.clock.Now().Add(s.ttl),
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie in the browser.
func (s *SessionCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// User returns the user carried by the request's session cookie.
func (s *SessionCodec) User(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	user, err := s.Decode(c.Value)
	if err != nil {
		return "", false
	}
	return user, true
}
