package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// transientPatterns are substrings that mark an error from the HTTP layer as
// retryable when no typed error survived the wrapping.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// TransientError marks an upstream failure as safe to retry: rate limits,
// overload responses, network flakes. The proposal collaborator and the alert
// webhook both classify their HTTP failures with it.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable, recording the HTTP status when
// one is known (0 otherwise).
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err is worth retrying. A typed TransientError
// anywhere in the chain decides it; otherwise network-level timeouts,
// connection errors, and the string patterns above are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// ClassifyError categorizes an error as "transient" or "permanent", for
// structured log fields.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// IsTransientHTTPStatus reports whether an HTTP status from the upstream or
// the alert webhook indicates a retryable server-side condition.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
