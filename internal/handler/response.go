package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so every error body
// has the same shape:
//   {"error": "event_unavailable", "message": "Event is full or unavailable"}
//
// Clients branch on "error". "message" is for people; for the RSVP kinds it
// is a fixed string. "field" only appears on validation errors.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/auth"
)

// Error kinds as they appear in the "error" field of a response body.
const (
	KindValidation      = "validation_error"
	KindUnauthenticated = "unauthenticated"
	KindForbidden       = "forbidden"
	KindNotFound        = "not_found"
	KindAlreadyJoined   = "already_joined"
	KindUnavailable     = "event_unavailable"
	KindConflict        = "conflict"
	KindInternal        = "internal_error"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error body returned by every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // input field, validation errors only
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must go out before the body; Encode writes the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKinds maps each apperror sentinel to its status and kind.
// Order does not matter: an AppError wraps exactly one sentinel.
var errorKinds = []struct {
	sentinel error
	status   int
	kind     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, KindValidation},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, KindUnauthenticated},
	{apperror.ErrForbidden, http.StatusForbidden, KindForbidden},
	{apperror.ErrNotFound, http.StatusNotFound, KindNotFound},
	{apperror.ErrAlreadyJoined, http.StatusConflict, KindAlreadyJoined},
	{apperror.ErrUnavailable, http.StatusConflict, KindUnavailable},
	{apperror.ErrConflict, http.StatusConflict, KindConflict},
}

// writeError converts an error into a JSON error response.
//
// Only *AppError values reach the client with their own message. Anything
// else is a store or programming error: the service has already logged it,
// and the client gets a generic 500 with no backend detail.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, k := range errorKinds {
			if errors.Is(appErr, k.sentinel) {
				writeJSON(w, k.status, ErrorResponse{
					Error:   k.kind,
					Message: appErr.Message,
					Field:   appErr.Field,
				})
				return
			}
		}
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   KindInternal,
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Malformed bodies come back as a
// validation error so the handler can pass them straight to writeError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "Request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("",
				fmt.Sprintf("Request body must be %d bytes or fewer", maxErr.Limit))
		default:
			return apperror.ValidationFailed("", "Invalid JSON in request body")
		}
	}
	return nil
}

// requireUserID returns the authenticated caller. RequireAuth guarantees a
// user on the routes that call this; the error path covers miswiring.
func requireUserID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthenticated("Authentication required")
	}
	return id, nil
}

// viewerID returns the caller on OptionalAuth routes, or "" for anonymous.
func viewerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
