package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the service.
type Repository interface {
	// Users are owned by the auth layer; the engine only reads contact data
	// and applies allow-listed profile edits.
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error)

	// Doctor directory
	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error
	SetDoctorApproval(ctx context.Context, id uuid.UUID, approved bool, status DoctorStatus) (*Doctor, error)
	ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) error

	// Patient directory
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	ListPatients(ctx context.Context, limit, offset int) ([]Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error

	// Appointment store
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindAppointment(ctx context.Context, f Filter) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)
	CountAppointments(ctx context.Context, f Filter) (int, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	// RescheduleAppointment moves a pending appointment; ErrNotPending if it
	// is no longer pending.
	RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, start, end string) (*Appointment, error)
	// UpdateAppointmentStatus applies from -> to only while the row is still in
	// from; ErrAppointmentNotFound otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// DeleteAppointment removes a pending appointment; ErrNotPending otherwise.
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// matches evaluates f against a single appointment. Stores that cannot push a
// predicate down use it to filter in process.
func (f Filter) matches(a *Appointment) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.ExcludeID != nil && a.ID == *f.ExcludeID {
		return false
	}
	if f.Date != nil && !sameDay(a.Date, *f.Date) {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if a.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (f DoctorFilter) matches(d *Doctor) bool {
	if f.Approved != nil && d.IsApproved != *f.Approved {
		return false
	}
	if f.Specialization != "" && d.Specialization != f.Specialization {
		return false
	}
	if f.MinFee != nil && d.ConsultationFee < *f.MinFee {
		return false
	}
	if f.MaxFee != nil && d.ConsultationFee > *f.MaxFee {
		return false
	}
	if f.MinExperience != nil && d.Experience < *f.MinExperience {
		return false
	}
	if f.MaxExperience != nil && d.Experience > *f.MaxExperience {
		return false
	}
	return true
}

func statusStrings(in []AppointmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
