package appointment

import (
	"context"
	"errors"
)

// Kind is the stable failure category exposed to callers.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal_error"
)

// Error carries a kind, a stable code and a human readable reason.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Is matches another *Error of the same kind whose code is empty or equal, so
// errors.Is(err, ErrInvalidInput) holds for every invalid input error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// WithDetail returns a copy of e with detail appended to the reason.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Reason: e.Reason + ": " + detail}
}

func newError(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

// Kind sentinels.
var (
	ErrInvalidInput = newError(KindInvalidInput, "", "invalid input")
	ErrForbidden    = newError(KindForbidden, "", "forbidden")
	ErrNotFound     = newError(KindNotFound, "", "not found")
	ErrInvalidState = newError(KindInvalidState, "", "invalid state")
	ErrConflict     = newError(KindConflict, "", "conflict")
	ErrTimeout      = newError(KindTimeout, "", "timeout")
)

var (
	ErrInvalidScheduledAt   = newError(KindInvalidInput, "invalid_scheduled_at", "scheduled_at must be an ISO-8601 instant")
	ErrBookingInPast        = newError(KindInvalidInput, "booking_in_past", "cannot book in the past")
	ErrInsufficientLeadTime = newError(KindInvalidInput, "insufficient_lead_time", "insufficient lead time")
	ErrProfessionalInactive = newError(KindInvalidInput, "professional_inactive", "professional is not accepting bookings")
	ErrInvalidRating        = newError(KindInvalidInput, "invalid_rating", "rating must be between 1 and 5")
	ErrCommentTooLong       = newError(KindInvalidInput, "comment_too_long", "comment is too long")
	ErrInvalidVideoRoomURL  = newError(KindInvalidInput, "invalid_video_room_url", "video room url must be an absolute http(s) url")

	ErrProfileIncomplete = newError(KindForbidden, "profile_incomplete", "profile incomplete")

	ErrSlotTaken = newError(KindConflict, "slot_taken", "slot already taken")

	ErrInvalidStatusTransition = newError(KindInvalidState, "invalid_status_transition", "invalid status transition")
	ErrRatingNotAllowed        = newError(KindInvalidState, "appointment_not_completed", "only completed appointments can be rated")
	ErrStatusChanged           = newError(KindInvalidState, "status_changed", "appointment status changed concurrently")

	ErrBookingTimeout = newError(KindTimeout, "booking_timeout", "booking transaction timed out")
)

// KindOf resolves the failure category of err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// CodeOf returns the specific code of err, falling back to its kind.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return string(KindOf(err))
}
