// file: internal/poller/errors.go

package poller

import (
	"errors"

	"cover-display/internal/spotify"
	"cover-display/internal/token"
)

// Kind is the closed set of failure kinds the loop knows how to recover from
type Kind int

const (
	// KindOther is anything the loop does not recover from
	KindOther Kind = iota
	// KindToken is a failed access token refresh
	KindToken
	// KindPlaying is a failed now-playing query or artwork download
	KindPlaying
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindPlaying:
		return "playing"
	default:
		return "other"
	}
}

// Classify maps an error to its kind
func Classify(err error) Kind {
	var tErr *token.Error
	if errors.As(err, &tErr) {
		return KindToken
	}

	var pErr *spotify.PlayingError
	if errors.As(err, &pErr) {
		return KindPlaying
	}

	return KindOther
}
