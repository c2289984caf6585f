package client

import (
	"context"
	"net/http"

	"github.com/afterword/afterword/internal/model"
)

// AuthResponse is returned by login and signup.
type AuthResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login exchanges credentials for a token. identifier is an email
// address or a username.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	body := struct {
		EmailOrUsername string `json:"email_or_username"`
		Password        string `json:"password"`
	}{identifier, password}
	var resp AuthResponse
	if err := c.requestJSON(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return &resp, nil
}

// Signup registers an account and signs it in.
func (c *Client) Signup(ctx context.Context, email, username, password string) (*AuthResponse, error) {
	body := struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{email, username, password}
	var resp AuthResponse
	if err := c.requestJSON(ctx, http.MethodPost, "/api/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return &resp, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.requestJSON(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChangeUsername renames the signed-in user.
func (c *Client) ChangeUsername(ctx context.Context, username string) error {
	body := struct {
		NewUsername string `json:"new_username"`
	}{username}
	if err := c.requestJSON(ctx, http.MethodPost, "/api/auth/change_username", body, &wireOK{}); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return nil
}

// ChangePassword updates the password. The server rejects a confirm that
// differs from newPassword.
func (c *Client) ChangePassword(ctx context.Context, old, newPassword, confirm string) error {
	body := struct {
		OldPassword        string `json:"old_password"`
		NewPassword        string `json:"new_password"`
		NewPasswordConfirm string `json:"new_password_confirm"`
	}{old, newPassword, confirm}
	return c.requestJSON(ctx, http.MethodPost, "/api/auth/change_password", body, &wireOK{})
}
