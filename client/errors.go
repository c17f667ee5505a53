package client

import (
	"fmt"
	"net/http"

	"github.com/MrEthical07/campusauth"
)

var (
	// ErrUnauthorized is returned when the session could not be recovered.
	// The local session has been cleared and the user must log in again.
	ErrUnauthorized = campusauth.ErrUnauthorized
	// ErrInvalidCredentials is returned by Login for a rejected email or password.
	ErrInvalidCredentials = campusauth.ErrInvalidCredentials
)

// APIError is a non-2xx answer from the server that the manager did not
// handle itself.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("campusauth: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("campusauth: %d %s", e.Status, e.Message)
}
