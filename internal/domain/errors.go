package domain

import "errors"

// ErrNotFound is returned when an event index does not exist in the current snapshot.
var ErrNotFound = errors.New("event not found")
