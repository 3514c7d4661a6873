package errs

import "github.com/pkg/errors"

var (
	ErrNotFound  = errors.New("Not found.")
	ErrForbidden = errors.New("You do not have permission to perform this action.")
	ErrNoSession = errors.New("session not found")
)
