package appwrite

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the error body returned by the Appwrite REST API.
type Error struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("appwrite: %d %s: %s", e.Code, e.Type, e.Message)
}

// IsNotFound reports whether err is an Appwrite 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// IsUnauthorized reports whether err is an Appwrite 401.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}
