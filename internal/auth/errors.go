package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: email or password is incorrect")
)

// ErrInvalidToken indicates a bearer credential failed validation.
var ErrInvalidToken = errors.New("auth: invalid token")
