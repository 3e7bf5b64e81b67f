package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row or document
var ErrNotFound = errors.New("not found")
