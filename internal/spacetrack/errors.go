package spacetrack

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError indicates the remote service rejected our credentials, either
// during a login handshake or after the single renew-and-retry sequence.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StatusError is returned when a data endpoint answers with a non-auth
// error status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("upstream returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// IsAuth reports whether err stems from rejected credentials.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
