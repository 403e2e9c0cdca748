package selection

import "fmt"

// Error represents a failed smart selection.
type Error struct {
	Preset  Preset
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("smart select %s: %s: %v", e.Preset, e.Message, e.Cause)
	}
	return fmt.Sprintf("smart select %s: %s", e.Preset, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
