package appointment

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a reported domain condition. Two errors match under errors.Is when
// their codes are equal, so a sentinel still matches after its message is
// specialised with withMessage.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) withMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the taxonomy kind of err, KindInternal for anything that is
// not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the machine readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

var (
	ErrMissingDoctorID  = &Error{KindValidation, "missing_doctor_id", "doctor id is required"}
	ErrInvalidDoctorID  = &Error{KindValidation, "invalid_doctor_id", "doctor id must be a valid UUID"}
	ErrInvalidPatientID = &Error{KindValidation, "invalid_patient_id", "patient id must be a valid UUID"}
	ErrMissingDate      = &Error{KindValidation, "missing_date", "date is required"}
	ErrInvalidDate      = &Error{KindValidation, "invalid_date", "date must be YYYY-MM-DD or RFC3339"}
	ErrPastDate         = &Error{KindValidation, "past_date", "cannot book appointment for past dates"}
	ErrInvalidSchedule  = &Error{KindValidation, "invalid_schedule", "invalid weekly schedule"}
	ErrInvalidProfile   = &Error{KindValidation, "invalid_profile", "invalid profile"}

	ErrUserNotFound        = &Error{KindNotFound, "user_not_found", "user not found"}
	ErrDoctorNotFound      = &Error{KindNotFound, "doctor_not_found", "doctor not found"}
	ErrPatientNotFound     = &Error{KindNotFound, "patient_not_found", "patient profile not found"}
	ErrAppointmentNotFound = &Error{KindNotFound, "appointment_not_found", "appointment not found"}

	ErrNotOwner = &Error{KindUnauthorized, "not_owner", "you are not authorized to modify this appointment"}

	ErrDuplicateBooking        = &Error{KindConflict, "duplicate_booking", "you have already booked an appointment on this date"}
	ErrNoSlotsAvailable        = &Error{KindConflict, "no_slots_available", "No slots available on this date"}
	ErrSlotBeingBooked         = &Error{KindConflict, "slot_being_booked", "this date is currently being booked, please retry"}
	ErrNotPending              = &Error{KindConflict, "not_pending", "only pending appointments can be deleted or updated"}
	ErrInvalidStatusTransition = &Error{KindConflict, "invalid_status_transition", "invalid status transition"}
	ErrProfileExists           = &Error{KindConflict, "profile_exists", "profile already exists"}
	ErrDoctorHasAppointments   = &Error{KindConflict, "doctor_has_appointments", "doctor still has active appointments"}
	ErrPatientHasAppointments  = &Error{KindConflict, "patient_has_appointments", "patient still has active appointments"}

	ErrDayOff       = &Error{KindUnavailable, "day_off", "doctor is off on this date"}
	ErrNotScheduled = &Error{KindUnavailable, "not_scheduled", "doctor is not available on this weekday"}
)
