package reconcile

import "fmt"

// ValidationError reports a rejected device identifier. It is raised
// before any network or cache access happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FetchError aggregates the failure of the remote calls in a cycle.
// A cycle that fetched only half its inputs is aborted, never applied.
type FetchError struct {
	DeviceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch for device %q failed: %v", e.DeviceID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
