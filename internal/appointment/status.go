package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

// transitions lists every permitted status change. cancelled -> confirmed is
// a re-approval and must re-check capacity.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: {StatusConfirmed},
}

func canTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actor identifies who is acting on an appointment: a doctor or patient
// profile id together with the role it belongs to.
type Actor struct {
	Role Role
	ID   uuid.UUID
}

func (a Actor) owns(appt *Appointment) bool {
	switch a.Role {
	case RoleDoctor:
		return appt.DoctorID == a.ID
	case RolePatient:
		return appt.PatientID == a.ID
	}
	return false
}

// Approve confirms an appointment assigned to doctorID. A cancelled
// appointment may be approved again only while the day still has capacity.
func (s *Service) Approve(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("appointment", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrNotOwner
	}

	switch appt.Status {
	case StatusPending:
		updated, err := s.transition(ctx, appt, StatusConfirmed)
		if err != nil {
			return nil, err
		}
		s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, nil)
		s.notifyAppointment(updated, notify.KindAppointmentConfirmed, false)
		return updated, nil

	case StatusCancelled:
		updated, err := s.reapprove(ctx, appt)
		if err != nil {
			return nil, err
		}
		s.logEvent(ctx, updated.ID, EventAppointmentReapproved, nil)
		s.notifyAppointment(updated, notify.KindAppointmentConfirmed, false)
		return updated, nil

	case StatusConfirmed:
		return nil, ErrInvalidStatusTransition.withMessage("appointment is already confirmed")
	default:
		return nil, ErrInvalidStatusTransition.withMessage("%s appointments cannot be approved", appt.Status)
	}
}

func (s *Service) reapprove(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if appt.Date.Before(s.Today()) {
		return nil, ErrPastDate
	}

	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}

	var updated *Appointment
	err = s.withDayLock(ctx, doctor.ID, appt.Date, func(lockCtx context.Context) error {
		if _, err := s.checkBookable(lockCtx, doctor, appt.PatientID, appt.Date, &appt.ID); err != nil {
			return err
		}
		updated, err = s.transition(lockCtx, appt, StatusConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel is available to the assigned doctor and the owning patient while
// the appointment is pending or confirmed.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("appointment", err)
	}
	if !actor.owns(appt) {
		return nil, ErrNotOwner
	}
	if appt.Status == StatusCancelled {
		return nil, ErrInvalidStatusTransition.withMessage("appointment is already cancelled")
	}

	updated, err := s.transition(ctx, appt, StatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"by":   string(actor.Role),
		"from": string(appt.Status),
	})
	s.notifyAppointment(updated, notify.KindAppointmentCancelled, false)
	return updated, nil
}

// Complete marks a confirmed appointment of doctorID as completed.
func (s *Service) Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("appointment", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrNotOwner
	}
	if appt.Status == StatusCompleted {
		return nil, ErrInvalidStatusTransition.withMessage("appointment is already completed")
	}

	updated, err := s.transition(ctx, appt, StatusCompleted)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, nil)
	s.notifyAppointment(updated, notify.KindAppointmentCompleted, false)
	return updated, nil
}

// transition applies appt.Status -> to if the table allows it. The store
// update is conditional on the status read, so a concurrent change surfaces
// as ErrInvalidStatusTransition.
func (s *Service) transition(ctx context.Context, appt *Appointment, to AppointmentStatus) (*Appointment, error) {
	if !canTransition(appt.Status, to) {
		return nil, ErrInvalidStatusTransition.withMessage("cannot move appointment from %s to %s", appt.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition.withMessage("appointment is no longer %s", appt.Status)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}
