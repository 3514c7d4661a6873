package errs

import "github.com/pkg/errors"

var (
	ErrNotFound      = errors.New("Not found.")
	ErrInvalidAuthor = errors.New("invalid author")
)
