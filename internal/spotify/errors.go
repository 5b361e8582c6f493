// file: internal/spotify/errors.go

package spotify

import "fmt"

// PlayingError reports a failed provider request: the now-playing query or
// the artwork download
type PlayingError struct {
	URL        string
	StatusCode int    // zero when no response was received
	Body       string // response body text for non-success statuses
	Err        error
}

func (e *PlayingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("could not access %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("could not access %s: %v", e.URL, e.Err)
}

func (e *PlayingError) Unwrap() error {
	return e.Err
}
