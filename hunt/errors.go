package hunt

import "errors"

// ErrAlreadyRunning is returned when a search start is requested while a
// search is in progress.
var ErrAlreadyRunning = errors.New("hunt: search already running")

// ErrNoSearch is returned by pause/resume when no search is active.
var ErrNoSearch = errors.New("hunt: no active search")

// ErrNoTargets is returned when a search is started without any target
// model numbers.
var ErrNoTargets = errors.New("hunt: no target identifiers")
