package storage

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is an unexpected HTTP status from a backend.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// IsAuthError reports whether err is a 401/403 response.
func IsAuthError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}
