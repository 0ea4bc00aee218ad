package signalling

import "errors"

// ErrUnavailable is returned when the gateway cannot be reached.
var ErrUnavailable = errors.New("signalling gateway unavailable")

// ErrSessionNotFound is returned when no gateway session exists for a room.
var ErrSessionNotFound = errors.New("signalling session not found")

// ErrAttachRejected is returned when the gateway refuses the plugin attach.
var ErrAttachRejected = errors.New("plugin attach rejected")

// ErrForwardRejected is returned when the gateway refuses an rtp_forward.
var ErrForwardRejected = errors.New("rtp forward rejected")

// ErrTimeout is returned when the gateway does not answer within the
// configured request timeout.
var ErrTimeout = errors.New("signalling request timed out")

// ErrClosed is returned when using a client after Close.
var ErrClosed = errors.New("signalling client closed")

// ErrNoPorts is returned when the UDP port pool is exhausted.
var ErrNoPorts = errors.New("no forward ports available")
