// Package auth persists the signed-in session and the device identity.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/afterword/afterword/internal/kv"
	"github.com/afterword/afterword/internal/model"
)

const (
	tokenKey = "token"
	userKey  = "auth_user"
)

// Store holds the bearer token and the cached user. It satisfies
// client.TokenSource: a 401 from the backend ends up in Expire.
type Store struct {
	kv  kv.Store
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewStore creates a session store on top of s.
func NewStore(s kv.Store, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{kv: s, log: log, now: time.Now, subs: make(map[int]func())}
}

// Token returns the stored token. A JWT whose exp claim has passed is
// treated as an expired session: it is cleared and subscribers notified.
func (s *Store) Token() string {
	tok, ok, err := s.kv.Get(context.Background(), tokenKey)
	if err != nil {
		s.log.Warn("reading token", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	if s.expired(tok) {
		s.log.Info("stored token expired")
		s.Expire()
		return ""
	}
	return tok
}

func (s *Store) expired(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		// Opaque tokens carry no expiry; the server decides.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !s.now().Before(exp.Time)
}

// User returns the cached user, if any.
func (s *Store) User() (model.User, bool) {
	raw, ok, err := s.kv.Get(context.Background(), userKey)
	if err != nil || !ok {
		return model.User{}, false
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return model.User{}, false
	}
	return u, true
}

// SignedIn reports whether a usable token is stored.
func (s *Store) SignedIn() bool {
	return s.Token() != ""
}

// Set stores a new session.
func (s *Store) Set(token string, user model.User) error {
	ctx := context.Background()
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.Set(ctx, tokenKey, token, 0); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	if err := s.kv.Set(ctx, userKey, string(data), 0); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}
	return nil
}

// SetUser replaces the cached user, keeping the token.
func (s *Store) SetUser(user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	return s.kv.Set(context.Background(), userKey, string(data), 0)
}

// Clear removes the session without notifying subscribers (sign-out).
func (s *Store) Clear() error {
	ctx := context.Background()
	if err := s.kv.Delete(ctx, tokenKey); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	if err := s.kv.Delete(ctx, userKey); err != nil {
		return fmt.Errorf("clearing user: %w", err)
	}
	return nil
}

// Expire clears the session and notifies subscribers.
func (s *Store) Expire() {
	if err := s.Clear(); err != nil {
		s.log.Warn("clearing expired session", "error", err)
	}
	s.mu.Lock()
	subs := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers fn to run on session expiry.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
