package repo

import "errors"

// ErrNotFound is returned when a requested record does not exist. Callers
// translate it into their own taxonomy; it never reaches a client directly.
var ErrNotFound = errors.New("record not found")
