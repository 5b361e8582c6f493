// file: internal/token/errors.go

package token

import "fmt"

// Error reports a failed refresh exchange: a transport failure, a non-success
// status, or an unusable response body
type Error struct {
	StatusCode int    // zero when no response was received
	Body       string // response body text for non-success statuses
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("could not obtain new spotify token: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("could not obtain new spotify token: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
