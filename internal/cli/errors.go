package cli

import (
	"errors"
	"fmt"

	"github.com/mark3labs/oasgen/internal/manifest"
)

// ErrUsage matches every error caused by how oasgen was invoked.
var ErrUsage = errors.New("oasgen: usage error")

// usageError is a user mistake. It renders an optional hint on its own line
// and keeps the underlying cause reachable through errors.As.
type usageError struct {
	msg   string
	hint  string
	cause error
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

// usageErrorf formats like fmt.Errorf, so a %w verb keeps the cause.
func usageErrorf(hint, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return usageError{msg: err.Error(), hint: hint, cause: errors.Unwrap(err)}
}

func (e usageError) Error() string {
	if e.hint == "" {
		return e.msg
	}
	return e.msg + "\nHint: " + e.hint
}

func (e usageError) Unwrap() error { return e.cause }

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// manifestUsageError maps structured manifest errors into friendly messages.
// Other errors pass through untouched.
func manifestUsageError(err error) error {
	var me *manifest.ManifestError
	if !errors.As(err, &me) {
		return err
	}
	msg := fmt.Sprintf("manifest: %s", me.Message)
	if me.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, me.Location)
	}
	if me.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, me.JSONPointer)
	}
	return usageError{msg: msg, cause: me}
}
