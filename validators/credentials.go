// Package validators checks user input before it reaches the services
package validators

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var (
	ErrEmailEmpty       = errors.New("no email address provided")
	ErrEmailInvalid     = errors.New("invalid email address provided")
	ErrPasswordEmpty    = errors.New("no password provided")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password can't be longer than 128 characters")
	ErrPasswordIsEmail  = errors.New("password can't be the same as the email address")
)

// NormalizeEmail validates a bare address and returns it trimmed and lower
// cased. Forms with a display name ("Bob <bob@example.com>") are rejected.
func NormalizeEmail(e string) (string, error) {
	e = strings.TrimSpace(e)
	if e == "" {
		return "", ErrEmailEmpty
	}

	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Name != "" || addr.Address != e {
		return "", ErrEmailInvalid
	}

	return strings.ToLower(addr.Address), nil
}

// CredentialsValidator checks the credentials of a new account and returns
// the normalized email. Password length is counted in characters, not bytes.
func CredentialsValidator(email, password string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(password) == "" {
		return "", ErrPasswordEmpty
	}

	switch n := utf8.RuneCountInString(password); {
	case n < minPasswordLength:
		return "", ErrPasswordTooShort
	case n > maxPasswordLength:
		return "", ErrPasswordTooLong
	}

	if strings.EqualFold(password, email) {
		return "", ErrPasswordIsEmail
	}

	return email, nil
}
