package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pai-backend/internal/database"

	"gorm.io/gorm"
)

const (
	// SessionCookieName carries the guest session key.
	SessionCookieName = "pai_session"

	// TokenCookieName may carry the user's JWT for browser requests.
	TokenCookieName = "pai_token"
)

type Sessions struct {
	db            *gorm.DB
	verifier      TokenVerifier
	ttl           time.Duration
	secureCookies bool
}

func NewSessions(db *gorm.DB, verifier TokenVerifier, ttl time.Duration, secureCookies bool) *Sessions {
	return &Sessions{db: db, verifier: verifier, ttl: ttl, secureCookies: secureCookies}
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware attaches the caller's Identity to the request context. Requests
// with a bad or stale token fall back to guest handling instead of failing.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), s.identify(r))))
	})
}

func (s *Sessions) identify(r *http.Request) Identity {
	if token := extractToken(r); token != "" {
		userId, err := s.verifier.Verify(token)
		if err == nil {
			user, err := database.GetUser(r.Context(), s.db, userId)
			if err == nil {
				return Identity{UserID: &user.ID, Username: user.Username}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				slog.Error("error loading user for token", "user_id", userId, "error", err)
			}
		} else {
			slog.Debug("ignoring invalid token", "error", err)
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return Identity{}
	}

	session, err := database.GetGuestSession(r.Context(), s.db, cookie.Value)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("error loading guest session", "error", err)
		}
		return Identity{}
	}

	return Identity{SessionKey: session.SessionKey}
}

// EnsureGuest issues a guest session to a caller that has neither a user nor
// a session yet, setting the cookie on w. Other identities are returned as is.
func (s *Sessions) EnsureGuest(w http.ResponseWriter, r *http.Request) (Identity, error) {
	identity := FromContext(r.Context())
	if identity.HasSession() {
		return identity, nil
	}

	session, err := database.CreateGuestSession(r.Context(), s.db, s.ttl)
	if err != nil {
		return identity, fmt.Errorf("error issuing guest session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.SessionKey,
		Path:     "/",
		Expires:  session.ExpiryTime,
		HttpOnly: true,
		Secure:   s.secureCookies || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	identity.SessionKey = session.SessionKey
	return identity, nil
}
