package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the core's error kinds onto HTTP statuses. Internal
// failures never leak their cause to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve  *appointment.ValidationError
		ibe *appointment.InsufficientBalanceError
		fe  *appointment.ForbiddenError
		nfe *appointment.NotFoundError
		ce  *appointment.ConflictError
		ite *appointment.InvalidTransitionError
		pv  *appointment.PolicyViolation
		te  *appointment.TimeoutError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Code, ve.Msg)
	case errors.As(err, &ibe):
		writeError(w, http.StatusPaymentRequired, "insufficient_balance", ibe.Error())
	case errors.As(err, &fe):
		writeError(w, http.StatusForbidden, fe.Reason, fe.Error())
	case errors.As(err, &nfe):
		writeError(w, http.StatusNotFound, "not_found", nfe.Error())
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, ce.Code, ce.Msg)
	case errors.As(err, &ite):
		writeError(w, http.StatusConflict, "invalid_transition", ite.Error())
	case errors.As(err, &pv):
		writeError(w, http.StatusUnprocessableEntity, pv.Code, pv.Msg)
	case errors.As(err, &te):
		writeError(w, http.StatusGatewayTimeout, "timeout", "the operation timed out, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

// identity returns the caller set by Authenticate. A zero Identity has no
// role and is rejected by every guarded operation.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDField(w http.ResponseWriter, field, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(w http.ResponseWriter, field string, raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, ok := parseUUIDField(w, field, *raw)
	if !ok {
		return nil, false
	}
	return &id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, key string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(key)
	return optionalUUID(w, key, &raw)
}

func parseDateField(w http.ResponseWriter, field, raw string) (appointment.Date, bool) {
	d, err := appointment.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be YYYY-MM-DD")
		return appointment.Date{}, false
	}
	return d, true
}

func parseClockField(w http.ResponseWriter, field, raw string) (appointment.Clock, bool) {
	c, err := appointment.ParseClock(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be HH:MM")
		return 0, false
	}
	return c, true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
