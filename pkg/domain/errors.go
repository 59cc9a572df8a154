package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownTheme is returned when a theme name is neither "light" nor "dark".
var ErrUnknownTheme = errors.New("unknown theme")

// ErrUnknownOrdering is returned when an ordering policy name is not recognised.
var ErrUnknownOrdering = errors.New("unknown ordering policy")
