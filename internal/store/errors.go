package store

import "errors"

// ErrNotFound indicates a missing slot lookup.
var ErrNotFound = errors.New("record not found")
