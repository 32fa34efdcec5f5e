package scraper

import (
	"errors"
	"fmt"
)

// TransportError reports a network failure, including context cancellation,
// while fetching URL.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response with a non-2xx status code. DetectionSrc is
// set when the error page also matched a bot-protection signature.
type StatusError struct {
	URL          string
	StatusCode   int
	DetectionSrc string
}

func (e *StatusError) Error() string {
	if e.DetectionSrc != "" {
		return fmt.Sprintf("fetch %s: unexpected status %d (%s)", e.URL, e.StatusCode, e.DetectionSrc)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// BlockedError reports a successful response whose body is a block page.
type BlockedError struct {
	URL    string
	Source string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetch %s: blocked by %s", e.URL, e.Source)
}

// IsTransport reports whether err is a transport-level failure: a network
// error or an unsuccessful status code.
func IsTransport(err error) bool {
	var te *TransportError
	var se *StatusError
	return errors.As(err, &te) || errors.As(err, &se)
}

// IsBlocked reports whether err is a detected block page.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}
