package encoder

import "errors"

// ErrUnavailable is returned when an encoder child cannot be spawned. The
// invoking operation must fail without mutating room state.
var ErrUnavailable = errors.New("encoder unavailable")

// ErrFailed is returned when an encoder child exits with a non-zero status.
var ErrFailed = errors.New("encoder exited with failure")

// ErrNotStarted is returned when operating on a handle whose process never
// started.
var ErrNotStarted = errors.New("encoder not started")
