package errs

import "github.com/pkg/errors"

var (
	ErrNotFound           = errors.New("user not found")
	ErrPhotoNotFound      = errors.New("profile photo not found")
	ErrConflict           = errors.New("A user with that username already exists.")
	ErrInvalidCredentials = errors.New("No active account found with the given credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrPhotoStorage       = errors.New("photo storage is not configured")
)
