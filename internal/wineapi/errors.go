package wineapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound     = errors.New("wineapi: not found")
	ErrUnauthorized = errors.New("wineapi: unauthorized")
)

// Error is a non-2xx answer from the wine API.
type Error struct {
	Op     string
	Status int
	Errors []string
}

func (e *Error) Error() string {
	msg := strings.Join(e.Errors, "; ")
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("wineapi %s: status %d: %s", e.Op, e.Status, msg)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}
