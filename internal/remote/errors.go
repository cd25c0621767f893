package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrTimeout = errors.New("request timed out")
	ErrNetwork = errors.New("request failed")
	ErrParse   = errors.New("malformed response")
)

// StatusError is returned when a remote service answers with an
// unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.Code, e.Body)
}

// Classify maps a transport error onto ErrTimeout or ErrNetwork.
// Errors that are already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrParse) {
		return err
	}
	var se *StatusError
	if errors.As(err, &se) {
		return err
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ParseError wraps a decoding failure in ErrParse.
func ParseError(err error) error {
	return fmt.Errorf("%w: %v", ErrParse, err)
}

// Truncate returns at most n runes of s. It never splits a multi-byte
// UTF-8 character.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
