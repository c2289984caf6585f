package auth

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	MinPasswordLength = 6
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)
)

var usernameRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(MinUsernameLength, MaxUsernameLength),
	validation.Match(usernamePattern).Error("may only contain letters, digits, '.', '_' or '-'"),
}

// LoginInput is the sign-in form. Identifier is an email or a username.
type LoginInput struct {
	Identifier string
	Password   string
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Identifier, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// SignupInput is the registration form.
type SignupInput struct {
	Email    string
	Username string
	Password string
}

func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&in.Username, usernameRules...),
		validation.Field(&in.Password, validation.Required, validation.RuneLength(MinPasswordLength, 0)),
	)
}

// ChangePasswordInput is the password change form.
type ChangePasswordInput struct {
	Old     string
	New     string
	Confirm string
}

func (in ChangePasswordInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Old, validation.Required),
		validation.Field(&in.New, validation.Required, validation.RuneLength(MinPasswordLength, 0)),
		validation.Field(&in.Confirm, validation.Required),
	)
	if err != nil {
		return err
	}
	if in.New != in.Confirm {
		return errors.New("new passwords do not match")
	}
	if in.New == in.Old {
		return errors.New("new password must differ from the old one")
	}
	return nil
}

// ValidateUsername checks a new username.
func ValidateUsername(name string) error {
	return validation.Validate(strings.TrimSpace(name), usernameRules...)
}
