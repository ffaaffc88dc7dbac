package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	ProfessionalID string `json:"professional_id"`
	ScheduledAt    string `json:"scheduled_at"`
}

type RateRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

type VideoRoomRequest struct {
	URL string `json:"url"`
}

type PartyResponse struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

type AppointmentResponse struct {
	ID           uuid.UUID     `json:"id"`
	Patient      PartyResponse `json:"patient"`
	Professional PartyResponse `json:"professional"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	EndsAt       time.Time     `json:"ends_at"`
	Status       string        `json:"status"`
	Price        string        `json:"price"`
	VideoRoomURL *string       `json:"video_room_url,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type RatingResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Rating        int       `json:"rating"`
	Comment       *string   `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	ProfessionalID uuid.UUID `json:"professional_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Available      bool      `json:"available"`
	Reason         string    `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func toParty(p appointment.Party) PartyResponse {
	return PartyResponse{ID: p.ID, UserID: p.UserID, Name: p.Name}
}

func toAppointmentResponse(d appointment.AppointmentDetail, slotLen time.Duration) AppointmentResponse {
	w := d.Window(slotLen)
	return AppointmentResponse{
		ID:           d.ID,
		Patient:      toParty(d.Patient),
		Professional: toParty(d.Professional),
		ScheduledAt:  w.Start,
		EndsAt:       w.End,
		Status:       string(d.Status),
		Price:        d.Price.StringFixed(2),
		VideoRoomURL: d.VideoRoomURL,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toAppointmentResponses(ds []appointment.AppointmentDetail, slotLen time.Duration) []AppointmentResponse {
	return lo.Map(ds, func(d appointment.AppointmentDetail, _ int) AppointmentResponse {
		return toAppointmentResponse(d, slotLen)
	})
}

func toRatingResponse(r *appointment.Rating) RatingResponse {
	return RatingResponse{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		Rating:        r.Value,
		Comment:       r.Comment,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
