package timing

import (
	"fmt"
)

// CallbackError reports an error returned by an event callback.
type CallbackError struct {
	ID  EventID
	Err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("timing: %s failed: %v", e.ID, e.Err)
}

// Unwrap returns the error returned by the callback.
func (e *CallbackError) Unwrap() error {
	return e.Err
}
