package restclient

import (
	"errors"
	"fmt"

	decoder "github.com/always-cache/restclient/pkg/response-decoder"
)

// ErrCacheWriteRefused is used when the cache memory limit has been exceeded.
// It is never returned to callers; the fresh response is returned instead.
var ErrCacheWriteRefused = errors.New("restclient: cache memory limit exceeded")

// DecodeError is returned in the strict output modes when a body cannot be decoded.
type DecodeError = decoder.DecodeError

// TransportError reports a failed network call.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("restclient: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
