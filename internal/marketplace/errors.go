package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredential maps upstream 401. Never retried, never hidden
	// behind demo fallback.
	ErrInvalidCredential = errors.New("marketplace: invalid credential")

	// ErrRateLimited maps upstream 429. Callers back the account off for the
	// rest of the tick; the account is not disabled.
	ErrRateLimited = errors.New("marketplace: rate limited")
)

// UpstreamError is any other >=400 response, carrying the body for logs.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("marketplace: upstream error %d: %s", e.Status, e.Body)
}

// TransportError covers connectivity and timeout failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("marketplace: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BookingError is a booking-specific rejection: slot taken, invalid id, or a
// failure while the booking call was in flight. Always surfaced to the
// requesting user.
type BookingError struct {
	Message string
	Err     error
}

func (e *BookingError) Error() string {
	return "marketplace: booking: " + e.Message
}

func (e *BookingError) Unwrap() error { return e.Err }

func IsBookingError(err error) bool {
	var be *BookingError
	return errors.As(err, &be)
}

func statusError(status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return ErrInvalidCredential
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		b := body
		if len(b) > 512 {
			b = b[:512]
		}
		return &UpstreamError{Status: status, Body: string(b)}
	}
}
