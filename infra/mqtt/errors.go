package mqtt

import "errors"

// ErrResponseTimeout is returned when no reply arrives before the timeout.
var ErrResponseTimeout = errors.New("timeout waiting for response")
