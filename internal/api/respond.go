package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[appointment.Kind]int{
	appointment.KindInvalidInput: http.StatusBadRequest,
	appointment.KindForbidden:    http.StatusForbidden,
	appointment.KindNotFound:     http.StatusNotFound,
	appointment.KindInvalidState: http.StatusConflict,
	appointment.KindConflict:     http.StatusConflict,
	appointment.KindTimeout:      http.StatusGatewayTimeout,
}

// writeServiceError maps a service failure to its HTTP status. Internal
// errors never leak their message.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := appointment.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: string(appointment.KindInternal),
			Code:  string(appointment.KindInternal),
		})
		return
	}

	details := err.Error()
	var domainErr *appointment.Error
	if !errors.As(err, &domainErr) {
		// Only wrapped deadline errors reach this branch.
		details = appointment.ErrTimeout.Reason
	}

	writeJSON(w, status, ErrorResponse{
		Error:   string(kind),
		Code:    appointment.CodeOf(err),
		Details: details,
	})
}
