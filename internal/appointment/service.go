package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentReapproved  = "APPOINTMENT_REAPPROVED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	logger   zerolog.Logger
	loc      *time.Location
	now      func() time.Time

	// in-flight notifications, drained by Wait on shutdown
	pending sync.WaitGroup
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		loc:      cfg.Location(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the clinic time zone.
func (s *Service) Today() time.Time {
	return CalendarDay(s.now(), s.loc)
}

// Wait blocks until every dispatched notification has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

type BookingRequest struct {
	DoctorID  string
	PatientID uuid.UUID
	Date      string
	Reason    string
}

// CreateBooking validates and stores a new pending appointment. The duplicate
// check, capacity check and insert run under a lock per doctor and day so
// concurrent requests cannot overrun maxPatientsPerDay.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if strings.TrimSpace(req.DoctorID) == "" {
		return nil, ErrMissingDoctorID
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, ErrInvalidDoctorID
	}
	day, err := ParseDay(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	if day.Before(s.Today()) {
		return nil, ErrPastDate
	}

	doctor, err := s.approvedDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.withDayLock(ctx, doctor.ID, day, func(lockCtx context.Context) error {
		slot, err := s.checkBookable(lockCtx, doctor, req.PatientID, day, nil)
		if err != nil {
			return err
		}

		now := s.now()
		appt := &Appointment{
			ID:        uuid.New(),
			DoctorID:  doctor.ID,
			PatientID: req.PatientID,
			Date:      day,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Status:    StatusPending,
			Reason:    strings.TrimSpace(req.Reason),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrDuplicateBooking) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       FormatDay(created.Date),
	})
	s.notifyAppointment(created, notify.KindAppointmentBooked, true)

	return created, nil
}

// RescheduleBooking moves a pending appointment owned by patientID to a new
// day, re-resolving the slot times for that day.
func (s *Service) RescheduleBooking(ctx context.Context, appointmentID, patientID uuid.UUID, newDate string) (*Appointment, error) {
	if strings.TrimSpace(newDate) == "" {
		return nil, ErrMissingDate
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("appointment", err)
	}
	if appt.PatientID != patientID {
		return nil, ErrNotOwner
	}
	if appt.Status != StatusPending {
		return nil, ErrNotPending.withMessage("only pending appointments can be updated")
	}

	day, err := ParseDay(newDate, s.loc)
	if err != nil {
		return nil, err
	}
	if day.Before(s.Today()) {
		return nil, ErrPastDate
	}

	doctor, err := s.approvedDoctor(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.withDayLock(ctx, doctor.ID, day, func(lockCtx context.Context) error {
		slot, err := s.checkBookable(lockCtx, doctor, patientID, day, &appt.ID)
		if err != nil {
			return err
		}
		updated, err = s.repo.RescheduleAppointment(lockCtx, appt.ID, day, slot.StartTime, slot.EndTime)
		if err != nil {
			if errors.Is(err, ErrNotPending) || errors.Is(err, ErrDuplicateBooking) {
				return err
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from": FormatDay(appt.Date),
		"to":   FormatDay(updated.Date),
	})
	s.notifyAppointment(updated, notify.KindAppointmentRescheduled, false)

	return updated, nil
}

// DeleteBooking removes a pending appointment owned by patientID, freeing its
// capacity.
func (s *Service) DeleteBooking(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return wrapLoad("appointment", err)
	}
	if appt.PatientID != patientID {
		return ErrNotOwner
	}
	if appt.Status != StatusPending {
		return ErrNotPending.withMessage("only pending appointments can be deleted")
	}

	if err := s.repo.DeleteAppointment(ctx, appt.ID); err != nil {
		if errors.Is(err, ErrNotPending) {
			return ErrNotPending.withMessage("only pending appointments can be deleted")
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentDeleted, map[string]any{
		"date": FormatDay(appt.Date),
	})
	return nil
}

// checkBookable runs the duplicate and availability checks for patientID on
// day, ignoring exclude (the appointment being moved). Must run under the
// doctor/day lock.
func (s *Service) checkBookable(ctx context.Context, doctor *Doctor, patientID uuid.UUID, day time.Time, exclude *uuid.UUID) (*WeeklySlot, error) {
	doctorID := doctor.ID
	dup, err := s.repo.FindAppointment(ctx, Filter{
		DoctorID:  &doctorID,
		PatientID: &patientID,
		Date:      &day,
		Statuses:  ActiveStatuses,
		ExcludeID: exclude,
	})
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check duplicate booking: %w", err)
	}
	if dup != nil {
		return nil, ErrDuplicateBooking
	}

	slot, reason := resolveSlot(doctor.Schedule, day)
	if slot == nil {
		return nil, unavailableError(SlotResult{Reason: reason, Date: day})
	}

	booked, err := s.repo.CountAppointments(ctx, Filter{
		DoctorID:  &doctorID,
		Date:      &day,
		Statuses:  ActiveStatuses,
		ExcludeID: exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("count active appointments: %w", err)
	}

	res := capacityResult(slot, day, booked)
	if !res.Available {
		return nil, ErrNoSlotsAvailable
	}
	return slot, nil
}

func (s *Service) withDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, redisclient.DoctorDayKey(doctorID, day), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func (s *Service) approvedDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	if !doctor.IsApproved {
		return nil, ErrDoctorNotFound
	}
	return doctor, nil
}

func (s *Service) loadDoctor(ctx context.Context, rawID string) (*Doctor, error) {
	if strings.TrimSpace(rawID) == "" {
		return nil, ErrMissingDoctorID
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidDoctorID
	}
	doctor, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	return doctor, nil
}

// wrapLoad keeps domain errors as they are and wraps store failures.
func wrapLoad(what string, err error) error {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// dispatch runs fn in the background with a context detached from the
// request. Failures are logged by fn; nothing is returned to the caller.
func (s *Service) dispatch(fn func(ctx context.Context)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Service) send(ctx context.Context, kind notify.Kind, to string, data notify.Data) {
	if to == "" {
		return
	}
	msg, err := notify.Build(kind, to, data)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to build notification")
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Str("to", to).Msg("notification failed")
	}
}

// notifyAppointment tells the patient about appt, and the doctor as well
// when alsoDoctor is set.
func (s *Service) notifyAppointment(appt *Appointment, kind notify.Kind, alsoDoctor bool) {
	a := *appt
	s.dispatch(func(ctx context.Context) {
		doctorName, doctorEmail := s.contactForDoctor(ctx, a.DoctorID)
		patientName, patientEmail := s.contactForPatient(ctx, a.PatientID)

		data := notify.Data{
			RecipientName: patientName,
			DoctorName:    doctorName,
			PatientName:   patientName,
			Date:          FormatDay(a.Date),
			StartTime:     a.StartTime,
			EndTime:       a.EndTime,
			Reason:        a.Reason,
		}
		s.send(ctx, kind, patientEmail, data)

		if alsoDoctor {
			data.RecipientName = doctorName
			s.send(ctx, notify.KindNewBookingForDoctor, doctorEmail, data)
		}
	})
}

func (s *Service) contactForDoctor(ctx context.Context, id uuid.UUID) (name, email string) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil || d.User == nil {
		s.logger.Warn().Err(err).Str("doctor_id", id.String()).Msg("no contact for doctor")
		return "", ""
	}
	return d.User.Name, d.User.Email
}

func (s *Service) contactForPatient(ctx context.Context, id uuid.UUID) (name, email string) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil || p.User == nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("no contact for patient")
		return "", ""
	}
	return p.User.Name, p.User.Email
}
