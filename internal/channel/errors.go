package channel

import (
	"errors"
	"fmt"
)

// PermissionError reports that the platform refused an operation for
// lack of permissions. The ticket close protocol inspects it to walk
// its fallback chain; anything else is treated as a transient failure.
type PermissionError struct {
	Op        string
	ChannelID string
	Err       error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: missing permissions: %v", e.Op, e.ChannelID, e.Err)
	}
	return fmt.Sprintf("%s %s: missing permissions", e.Op, e.ChannelID)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// IsPermission reports whether err is a permission refusal.
func IsPermission(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr)
}

// ErrNotFound is returned when the referenced channel no longer exists.
var ErrNotFound = errors.New("channel: not found")
