package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError wraps a fetch failure that is safe to retry: rate limits,
// server errors, blocked responses and network faults.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err, or any error in its chain, is worth
// retrying.
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
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"proxyconnect",
		"socks connect",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// StatusClass groups platform HTTP responses by how a fetch should treat them.
type StatusClass int

const (
	// StatusOK is a usable response.
	StatusOK StatusClass = iota
	// StatusMissing means the account does not exist or is cannot be reached.
	StatusMissing
	// StatusRetryable is a rate limit, block or server fault.
	StatusRetryable
	// StatusPermanent is any other client error.
	StatusPermanent
)

// ClassifyStatus maps an HTTP status code to a StatusClass.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return StatusOK
	case code == http.StatusNotFound, code == http.StatusGone:
		return StatusMissing
	case code == http.StatusRequestTimeout,
		code == http.StatusForbidden,
		code == http.StatusTooManyRequests,
		code >= 500:
		return StatusRetryable
	default:
		return StatusPermanent
	}
}
