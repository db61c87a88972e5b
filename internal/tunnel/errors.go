package tunnel

import (
	"errors"
	"fmt"
)

// AuthError reports rejected credentials, on the jump host or a device.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UnreachableError reports a connection failure before authentication.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Host string
	Op   string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out on %s: %v", e.Op, e.Host, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// CommandError reports a device CLI error banner in response to a command.
type CommandError struct {
	Host    string
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected by %s: %s", e.Command, e.Host, e.Output)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsUnreachable reports whether err is a connectivity failure.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsCommand reports whether err is a device command rejection.
func IsCommand(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
