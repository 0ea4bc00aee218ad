package recording

import (
	"errors"
	"fmt"
)

// ErrAlreadyFinalized is returned when a segment's end timestamp is set a
// second time.
var ErrAlreadyFinalized = errors.New("segment already finalized")

// CommandError is a room command rejection carrying the numeric code the
// legacy HTTP surface reports as the response state.
type CommandError struct {
	// Code is negative; each command documents its code set.
	Code int
	// Message is the human-readable reason returned to the caller.
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command rejected (%d): %s", e.Code, e.Message)
}

// cmdErr builds a CommandError with a formatted message.
func cmdErr(code int, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CommandCode extracts the numeric code from a command error, or a generic
// internal code when the error is not a command rejection.
func CommandCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -10
}
