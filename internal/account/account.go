package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrMissingField is returned when a required form field is blank
	ErrMissingField = errors.New("missing required field")
	// ErrPasswordMismatch is returned when the confirmation does not match
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Credentials is a login form
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is a sign-up form
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Result tells the client what to show and where to go next
type Result struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// AuthService logs users in and registers new ones
type AuthService interface {
	Login(ctx context.Context, creds Credentials) (Result, error)
	Register(ctx context.Context, reg Registration) (Result, error)
}

// StubAuth accepts every complete form without checking any account
type StubAuth struct{}

// Login succeeds for any email and password
func (StubAuth) Login(ctx context.Context, creds Credentials) (Result, error) {
	if err := required("email", creds.Email, "password", creds.Password); err != nil {
		return Result{}, err
	}
	slog.Info("Login accepted", "email", creds.Email)
	return Result{Message: "Login successful!", Redirect: "/"}, nil
}

// Register succeeds once the password confirmation matches
func (StubAuth) Register(ctx context.Context, reg Registration) (Result, error) {
	if err := required("name", reg.Name, "email", reg.Email, "password", reg.Password); err != nil {
		return Result{}, err
	}
	if reg.Password != reg.ConfirmPassword {
		return Result{}, ErrPasswordMismatch
	}
	slog.Info("Registration accepted", "email", reg.Email)
	return Result{Message: "Registration successful! Please login.", Redirect: "/login"}, nil
}

// required takes name/value pairs and reports the first blank value
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, pairs[i])
		}
	}
	return nil
}
