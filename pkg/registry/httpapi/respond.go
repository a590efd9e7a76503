package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const maxBodyBytes = 64 << 10

var (
	errBadBody     = errors.New("httpapi.invalid_body")
	errRateLimited = errors.New("httpapi.rate_limited")
)

// Error is the body of every failed response.
type Error struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	// Beacons arrive as text/plain, so the content type is not checked.
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(errBadBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, errBadBody.Error()
	case errors.Is(err, registry.ErrInvalidRequest):
		return http.StatusBadRequest, registry.ErrInvalidRequest.Error()
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, errRateLimited.Error()
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthenticated.Error()
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, session.ErrForbidden.Error()
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, session.ErrSessionNotFound.Error()
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
