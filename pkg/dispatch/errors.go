package dispatch

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when no usable account remains after a full
// pool scan. Callers may retry later; the boundary maps it to 503.
var ErrExhausted = errors.New("all accounts exhausted")

// UpstreamError is a non-200, non-429 upstream response. It is terminal
// for the call: only rate limiting triggers rotation.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Body)
}
