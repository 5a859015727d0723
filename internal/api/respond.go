package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind appointment.Kind) int {
	switch kind {
	case appointment.KindValidation:
		return http.StatusBadRequest
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindUnauthorized:
		return http.StatusForbidden
	case appointment.KindConflict:
		return http.StatusConflict
	case appointment.KindUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as JSON. Internal errors are logged and their text
// is not sent to the client.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointment.KindOf(err)
	if kind == appointment.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeError(w, statusFor(kind), appointment.CodeOf(err), err.Error())
}

// decodeJSON reads a single JSON object and rejects unknown fields, so that
// only allow-listed fields can ever reach an update.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		details := "could not parse JSON"
		if errors.Is(err, io.EOF) {
			details = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", details)
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
