package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/auth"
)

type appointmentHandlers struct {
	svc *appointment.Service
}

func callerOf(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	c, ok := auth.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller")
	}
	return c, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func (h *appointmentHandlers) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	proID, err := uuid.Parse(req.ProfessionalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
		return
	}

	d, err := h.svc.Create(r.Context(), caller, appointment.CreateRequest{
		ProfessionalID: proID,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*d, h.svc.Policy().Duration))
}

func (h *appointmentHandlers) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f appointment.ListFilter

	if s := q.Get("status"); s != "" {
		st, ok := appointment.ParseStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(s))
			return
		}
		f.Status = &st
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}
	f = f.Paged()

	items, err := h.svc.List(r.Context(), caller, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AppointmentListResponse{
		Items:  toAppointmentResponses(items, h.svc.Policy().Duration),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (h *appointmentHandlers) get(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, h.svc.Get)
}

type appointmentAction func(ctx context.Context, caller auth.Caller, id uuid.UUID) (*appointment.AppointmentDetail, error)

// withAppointment runs an action on the appointment named in the path and
// writes the resulting detail.
func (h *appointmentHandlers) withAppointment(w http.ResponseWriter, r *http.Request, action appointmentAction) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	d, err := action(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*d, h.svc.Policy().Duration))
}

func (h *appointmentHandlers) action(fn appointmentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.withAppointment(w, r, fn)
	}
}

func (h *appointmentHandlers) attachVideoRoom(w http.ResponseWriter, r *http.Request) {
	var req VideoRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.withAppointment(w, r, func(ctx context.Context, caller auth.Caller, id uuid.UUID) (*appointment.AppointmentDetail, error) {
		return h.svc.AttachVideoRoom(ctx, caller, id, req.URL)
	})
}

func (h *appointmentHandlers) rate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rating, err := h.svc.Rate(r.Context(), caller, id, req.Rating, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (h *appointmentHandlers) getRating(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	rating, err := h.svc.GetRating(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (h *appointmentHandlers) availability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	at := r.URL.Query().Get("at")
	if at == "" {
		writeError(w, http.StatusBadRequest, "missing_at", "query parameter at is required")
		return
	}

	av, err := h.svc.CheckSlot(r.Context(), id, at)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ProfessionalID: av.ProfessionalID,
		Start:          av.Window.Start,
		End:            av.Window.End,
		Available:      av.Available,
		Reason:         av.Reason,
	})
}
