package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

type DoctorProfileInput struct {
	Specialization  string
	Experience      int
	ConsultationFee float64
	ClinicAddress   string
	WeeklySlots     []WeeklySlot
}

type PatientProfileInput struct {
	Gender         string
	DateOfBirth    *time.Time
	Address        string
	MedicalHistory []string
}

// DoctorForUser resolves the doctor profile owned by a user account.
func (s *Service) DoctorForUser(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByUserID(ctx, userID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	return d, nil
}

// PatientForUser resolves the patient profile owned by a user account.
func (s *Service) PatientForUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByUserID(ctx, userID)
	if err != nil {
		return nil, wrapLoad("patient", err)
	}
	return p, nil
}

func (s *Service) CreateDoctorProfile(ctx context.Context, userID uuid.UUID, in DoctorProfileInput) (*Doctor, error) {
	if strings.TrimSpace(in.Specialization) == "" {
		return nil, ErrInvalidProfile.withMessage("specialization is required")
	}
	if strings.TrimSpace(in.ClinicAddress) == "" {
		return nil, ErrInvalidProfile.withMessage("clinic_address is required")
	}
	if in.Experience < 0 {
		return nil, ErrInvalidProfile.withMessage("experience cannot be negative")
	}
	if in.ConsultationFee < 0 {
		return nil, ErrInvalidProfile.withMessage("consultation_fee cannot be negative")
	}
	slots, err := NormalizeWeeklySlots(in.WeeklySlots)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, wrapLoad("user", err)
	}
	if _, err := s.repo.GetDoctorByUserID(ctx, userID); err == nil {
		return nil, ErrProfileExists.withMessage("doctor profile already exists")
	} else if !errors.Is(err, ErrDoctorNotFound) {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	now := s.now()
	d := &Doctor{
		ID:              uuid.New(),
		UserID:          userID,
		Specialization:  strings.TrimSpace(in.Specialization),
		Experience:      in.Experience,
		ConsultationFee: in.ConsultationFee,
		ClinicAddress:   strings.TrimSpace(in.ClinicAddress),
		Schedule:        Schedule{WeeklySlots: slots},
		IsApproved:      false,
		Status:          DoctorPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		if errors.Is(err, ErrProfileExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	return d, nil
}

// UpdateDoctorProfile applies only the allow-listed fields in upd.
func (s *Service) UpdateDoctorProfile(ctx context.Context, doctorID uuid.UUID, upd DoctorProfileUpdate) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}

	if upd.Specialization != nil {
		v := strings.TrimSpace(*upd.Specialization)
		if v == "" {
			return nil, ErrInvalidProfile.withMessage("specialization cannot be empty")
		}
		d.Specialization = v
	}
	if upd.Experience != nil {
		if *upd.Experience < 0 {
			return nil, ErrInvalidProfile.withMessage("experience cannot be negative")
		}
		d.Experience = *upd.Experience
	}
	if upd.ConsultationFee != nil {
		if *upd.ConsultationFee < 0 {
			return nil, ErrInvalidProfile.withMessage("consultation_fee cannot be negative")
		}
		d.ConsultationFee = *upd.ConsultationFee
	}
	if upd.ClinicAddress != nil {
		v := strings.TrimSpace(*upd.ClinicAddress)
		if v == "" {
			return nil, ErrInvalidProfile.withMessage("clinic_address cannot be empty")
		}
		d.ClinicAddress = v
	}

	return s.saveDoctor(ctx, d)
}

// SetWeeklySlots replaces the doctor's recurring schedule. Existing bookings
// are not revisited.
func (s *Service) SetWeeklySlots(ctx context.Context, doctorID uuid.UUID, slots []WeeklySlot) (*Doctor, error) {
	normalized, err := NormalizeWeeklySlots(slots)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	d.Schedule.WeeklySlots = normalized
	return s.saveDoctor(ctx, d)
}

func (s *Service) AddDayOff(ctx context.Context, doctorID uuid.UUID, rawDate string) (*Doctor, error) {
	day, err := ParseDay(rawDate, s.loc)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	if d.Schedule.IsDayOff(day) {
		return d, nil
	}
	d.Schedule.DaysOff = append(d.Schedule.DaysOff, day)
	return s.saveDoctor(ctx, d)
}

func (s *Service) RemoveDayOff(ctx context.Context, doctorID uuid.UUID, rawDate string) (*Doctor, error) {
	day, err := ParseDay(rawDate, s.loc)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	kept := d.Schedule.DaysOff[:0]
	for _, off := range d.Schedule.DaysOff {
		if !sameDay(off, day) {
			kept = append(kept, off)
		}
	}
	d.Schedule.DaysOff = kept
	return s.saveDoctor(ctx, d)
}

// DeleteDoctorProfile removes a doctor that has no upcoming active
// appointments.
func (s *Service) DeleteDoctorProfile(ctx context.Context, doctorID uuid.UUID) error {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return wrapLoad("doctor", err)
	}
	today := s.Today()
	n, err := s.repo.CountAppointments(ctx, Filter{
		DoctorID: &doctorID,
		From:     &today,
		Statuses: ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("count doctor appointments: %w", err)
	}
	if n > 0 {
		return ErrDoctorHasAppointments
	}
	if err := s.repo.DeleteDoctor(ctx, doctorID); err != nil {
		return wrapLoad("doctor", err)
	}
	return nil
}

func (s *Service) saveDoctor(ctx context.Context, d *Doctor) (*Doctor, error) {
	d.UpdatedAt = s.now()
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return nil, wrapLoad("doctor", err)
	}
	return d, nil
}

// GetDoctor is the public profile read; unapproved doctors are hidden.
func (s *Service) GetDoctor(ctx context.Context, rawID string) (*Doctor, error) {
	d, err := s.loadDoctor(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !d.IsApproved {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

// ListDoctors returns approved doctors matching f.
func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	approved := true
	f.Approved = &approved
	doctors, err := s.repo.ListDoctors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) ListPendingDoctors(ctx context.Context) ([]Doctor, error) {
	approved := false
	doctors, err := s.repo.ListDoctors(ctx, DoctorFilter{Approved: &approved})
	if err != nil {
		return nil, fmt.Errorf("list pending doctors: %w", err)
	}
	out := doctors[:0]
	for _, d := range doctors {
		if d.Status == DoctorPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) ApproveDoctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	d, err := s.repo.SetDoctorApproval(ctx, doctorID, true, DoctorApproved)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}

	doc := *d
	s.dispatch(func(ctx context.Context) {
		name, email := s.contactForDoctor(ctx, doc.ID)
		s.send(ctx, notify.KindDoctorApproved, email, notify.Data{RecipientName: name})
	})
	return d, nil
}

func (s *Service) RejectDoctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	d, err := s.repo.SetDoctorApproval(ctx, doctorID, false, DoctorRejected)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}
	return d, nil
}

func (s *Service) CreatePatientProfile(ctx context.Context, userID uuid.UUID, in PatientProfileInput) (*Patient, error) {
	if strings.TrimSpace(in.Gender) == "" {
		return nil, ErrInvalidProfile.withMessage("gender is required")
	}
	if in.DateOfBirth == nil {
		return nil, ErrInvalidProfile.withMessage("date_of_birth is required")
	}
	if in.DateOfBirth.After(s.now()) {
		return nil, ErrInvalidProfile.withMessage("date_of_birth cannot be in the future")
	}
	if strings.TrimSpace(in.Address) == "" {
		return nil, ErrInvalidProfile.withMessage("address is required")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, wrapLoad("user", err)
	}
	if _, err := s.repo.GetPatientByUserID(ctx, userID); err == nil {
		return nil, ErrProfileExists.withMessage("patient profile already exists")
	} else if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := s.now()
	p := &Patient{
		ID:             uuid.New(),
		UserID:         userID,
		Gender:         strings.TrimSpace(in.Gender),
		DateOfBirth:    in.DateOfBirth,
		Address:        strings.TrimSpace(in.Address),
		MedicalHistory: in.MedicalHistory,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, ErrProfileExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	name, email := user.Name, user.Email
	s.dispatch(func(ctx context.Context) {
		s.send(ctx, notify.KindPatientProfileCreated, email, notify.Data{RecipientName: name})
	})
	return p, nil
}

// UpdatePatientProfile applies only the allow-listed fields in upd.
func (s *Service) UpdatePatientProfile(ctx context.Context, patientID uuid.UUID, upd PatientProfileUpdate) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, wrapLoad("patient", err)
	}

	if upd.Gender != nil {
		v := strings.TrimSpace(*upd.Gender)
		if v == "" {
			return nil, ErrInvalidProfile.withMessage("gender cannot be empty")
		}
		p.Gender = v
	}
	if upd.DateOfBirth != nil {
		if upd.DateOfBirth.After(s.now()) {
			return nil, ErrInvalidProfile.withMessage("date_of_birth cannot be in the future")
		}
		p.DateOfBirth = upd.DateOfBirth
	}
	if upd.Address != nil {
		v := strings.TrimSpace(*upd.Address)
		if v == "" {
			return nil, ErrInvalidProfile.withMessage("address cannot be empty")
		}
		p.Address = v
	}
	if upd.MedicalHistory != nil {
		p.MedicalHistory = upd.MedicalHistory
	}

	p.UpdatedAt = s.now()
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return nil, wrapLoad("patient", err)
	}
	return p, nil
}

// DeletePatientProfile removes a patient that has no upcoming active
// appointments. The user account stays with the auth layer.
func (s *Service) DeletePatientProfile(ctx context.Context, patientID uuid.UUID) error {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return wrapLoad("patient", err)
	}
	today := s.Today()
	n, err := s.repo.CountAppointments(ctx, Filter{
		PatientID: &patientID,
		From:      &today,
		Statuses:  ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("count patient appointments: %w", err)
	}
	if n > 0 {
		return ErrPatientHasAppointments
	}
	if err := s.repo.DeletePatient(ctx, patientID); err != nil {
		return wrapLoad("patient", err)
	}
	return nil
}

// ListPatients pages through every patient profile, oldest first.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// PatientRecord is a patient as one doctor sees them: the profile plus only
// the appointments held with that doctor, newest first.
type PatientRecord struct {
	Patient         *Patient
	TotalVisits     int
	LastAppointment *time.Time
	History         []Appointment
}

func (s *Service) PatientRecordForDoctor(ctx context.Context, doctorID uuid.UUID, rawPatientID string) (*PatientRecord, error) {
	patientID, err := uuid.Parse(strings.TrimSpace(rawPatientID))
	if err != nil {
		return nil, ErrInvalidPatientID
	}
	p, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, wrapLoad("patient", err)
	}

	history, err := s.repo.ListAppointments(ctx, Filter{DoctorID: &doctorID, PatientID: &patientID})
	if err != nil {
		return nil, fmt.Errorf("list patient history: %w", err)
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	rec := &PatientRecord{Patient: p, TotalVisits: len(history), History: history}
	if len(history) > 0 {
		last := history[0].Date
		rec.LastAppointment = &last
	}
	return rec, nil
}

// UpdateUserProfile changes name, email and phone. Role and credentials are
// not reachable from here.
func (s *Service) UpdateUserProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*User, error) {
	if upd.Name != nil {
		v := strings.TrimSpace(*upd.Name)
		if v == "" {
			return nil, ErrInvalidProfile.withMessage("name cannot be empty")
		}
		upd.Name = &v
	}
	if upd.Email != nil {
		v, err := normalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		upd.Email = &v
	}

	u, err := s.repo.UpdateUser(ctx, userID, upd)
	if err != nil {
		return nil, wrapLoad("user", err)
	}
	return u, nil
}

// normalizeEmail accepts a bare address only. Display names and anything a
// mail header could not carry are rejected.
func normalizeEmail(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return "", ErrInvalidProfile.withMessage("email is invalid")
	}
	return v, nil
}
