package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrInvalidArgument   = errors.New("invalid argument")
)
