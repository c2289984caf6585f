package backendtest

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type userJSON struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (u *user) json() userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Username: u.Username}
}

type authResponse struct {
	Token string   `json:"token"`
	User  userJSON `json:"user"`
}

// AddUser registers an account directly and returns a valid token for it.
func (b *Backend) AddUser(email, username, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := &user{ID: uuid.NewString(), Email: email, Username: username, Password: password}
	b.users[email] = u
	tok, _ := b.issueLocked(u)
	return tok
}

func (b *Backend) issueLocked(u *user) (string, error) {
	now := b.Now()
	claims := jwt.RegisteredClaims{
		Subject:   u.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(b.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

// authed resolves the bearer token to a user or answers 401.
func (b *Backend) authed(next func(http.ResponseWriter, *http.Request, *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}

		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return b.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(b.Now))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		b.mu.Lock()
		u, found := b.users[claims.Subject]
		b.mu.Unlock()
		if !found {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token claims")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[req.Email]; ok {
		writeError(w, http.StatusConflict, "email_taken", "email already exists")
		return
	}
	for _, u := range b.users {
		if u.Username == req.Username {
			writeError(w, http.StatusConflict, "username_taken", "username already exists")
			return
		}
	}

	u := &user{ID: uuid.NewString(), Email: req.Email, Username: req.Username, Password: req.Password}
	b.users[u.Email] = u
	tok, err := b.issueLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: u.json()})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailOrUsername string `json:"email_or_username"`
		Password        string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.lookupLocked(req.EmailOrUsername)
	if u == nil || u.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	tok, err := b.issueLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: u.json()})
}

// lookupLocked finds a user by email, then by username.
func (b *Backend) lookupLocked(id string) *user {
	if u, ok := b.users[id]; ok {
		return u
	}
	for _, u := range b.users {
		if u.Username == id {
			return u
		}
	}
	return nil
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	resp := u.json()
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleChangeUsername(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		NewUsername string `json:"new_username"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.NewUsername == u.Username {
		writeError(w, http.StatusBadRequest, "USERNAME_SAME", "username unchanged")
		return
	}
	for _, other := range b.users {
		if other != u && other.Username == req.NewUsername {
			writeError(w, http.StatusBadRequest, "USERNAME_TAKEN", "username already exists")
			return
		}
	}
	u.Username = req.NewUsername
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		OldPassword        string `json:"old_password"`
		NewPassword        string `json:"new_password"`
		NewPasswordConfirm string `json:"new_password_confirm"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request: "+err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case req.NewPassword != req.NewPasswordConfirm:
		writeError(w, http.StatusBadRequest, "PASSWORD_MISMATCH", "passwords do not match")
	case req.NewPassword == req.OldPassword:
		writeError(w, http.StatusBadRequest, "PASSWORD_SAME", "new password must differ")
	case req.OldPassword != u.Password:
		writeError(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "invalid credentials")
	default:
		u.Password = req.NewPassword
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
