package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/frodejac/writeups/internal/database/sessions"
	"github.com/frodejac/writeups/internal/random"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

type SessionCookieConfig struct {
	Name     string
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Lifetime time.Duration
}

type SessionService struct {
	store  *sessions.Store
	cookie *SessionCookieConfig
	codec  *securecookie.SecureCookie
	now    func() time.Time
}

// NewSessionService returns a session service whose cookies are signed with
// secret. The cookie only carries the session id; the role lives in store.
func NewSessionService(store *sessions.Store, cookieConfig *SessionCookieConfig, secret []byte) *SessionService {
	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(cookieConfig.Lifetime / time.Second))
	return &SessionService{
		store:  store,
		cookie: cookieConfig,
		codec:  codec,
		now:    time.Now,
	}
}

// RequireCapability rejects requests whose principal lacks c with a JSON 401.
func (s *SessionService) RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := s.Principal(r)
			if err != nil {
				zap.S().Errorw("Error validating session", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			if !principal.Can(c) {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Principal returns the caller behind r, or nil for anonymous visitors.
// Missing, tampered and expired sessions all read as anonymous.
func (s *SessionService) Principal(r *http.Request) (*Principal, error) {
	id := s.getSessionId(r)
	if id == "" {
		return nil, nil
	}

	session, err := s.store.Get(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	// Check if session is expired
	if session.ExpiresAt.Before(s.now()) {
		// Cleanup
		if err := s.store.Delete(r.Context(), id); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}
	role := Role(session.Role)
	if !role.Valid() {
		return nil, nil
	}
	return &Principal{SessionId: session.Id, Role: role}, nil
}

// Create starts a session for role and sets its cookie on w.
func (s *SessionService) Create(ctx context.Context, w http.ResponseWriter, role Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("cannot create session for role %q", role)
	}
	id := random.String(32)
	now := s.now()
	expiresAt := now.Add(s.cookie.Lifetime)
	if err := s.store.Create(ctx, id, string(role), now, expiresAt); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	encoded, err := s.codec.Encode(s.cookie.Name, id)
	if err != nil {
		return "", fmt.Errorf("failed to encode session cookie: %w", err)
	}
	http.SetCookie(w, s.newCookie(encoded, expiresAt))
	return id, nil
}

// Destroy ends the caller's session, if any, and always clears the cookie.
func (s *SessionService) Destroy(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, s.newCookie("", time.Unix(0, 0)))
	id := s.getSessionId(r)
	if id == "" {
		return nil // No session to destroy
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions from the store.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

func (s *SessionService) newCookie(value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookie.Name,
		Value:    value,
		Expires:  expiresAt,
		Path:     s.cookie.Path,
		HttpOnly: s.cookie.HttpOnly,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	}
}

func (s *SessionService) getSessionId(r *http.Request) string {
	// Get session ID from cookie
	if s.cookie == nil {
		panic(fmt.Errorf("cookie config is nil"))
	}
	sess, err := r.Cookie(s.cookie.Name)
	if err != nil || sess.Value == "" {
		return ""
	}
	var id string
	if err := s.codec.Decode(s.cookie.Name, sess.Value, &id); err != nil {
		var cookieErr securecookie.Error
		if errors.As(err, &cookieErr) && cookieErr.IsDecode() {
			zap.S().Debugw("Rejected session cookie", "error", err)
		}
		return ""
	}
	return id
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
