package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const upcomingForPatient = 3

type PatientVisits struct {
	Patient   *Patient
	Visits    int
	LastVisit time.Time
}

type DoctorDashboard struct {
	Today        []AppointmentDetail
	NextSevenDay []AppointmentDetail
	TodayRevenue float64
	WeekRevenue  float64
	Patients     []PatientVisits
}

type PatientDashboard struct {
	Upcoming []AppointmentDetail
}

// ListFilter narrows a doctor's or patient's own appointment listing. Dates
// are raw request values.
type ListFilter struct {
	Status string
	From   string
	To     string
	Limit  int
	Offset int
}

func (s *Service) toFilter(in ListFilter) (Filter, error) {
	var f Filter
	if in.Status != "" {
		st := AppointmentStatus(in.Status)
		if !st.Valid() {
			return f, &Error{KindValidation, "invalid_status", fmt.Sprintf("unknown status %q", in.Status)}
		}
		f.Statuses = []AppointmentStatus{st}
	}
	if in.From != "" {
		d, err := ParseDay(in.From, s.loc)
		if err != nil {
			return f, err
		}
		f.From = &d
	}
	if in.To != "" {
		d, err := ParseDay(in.To, s.loc)
		if err != nil {
			return f, err
		}
		f.To = &d
	}
	f.Limit, f.Offset = in.Limit, in.Offset
	return f, nil
}

func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, in ListFilter) ([]AppointmentDetail, error) {
	f, err := s.toFilter(in)
	if err != nil {
		return nil, err
	}
	f.DoctorID = &doctorID
	return s.listDetails(ctx, f)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, in ListFilter) ([]AppointmentDetail, error) {
	f, err := s.toFilter(in)
	if err != nil {
		return nil, err
	}
	f.PatientID = &patientID
	return s.listDetails(ctx, f)
}

// GetAppointment returns one appointment to its doctor or patient.
func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID, viewer Actor) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("appointment", err)
	}
	if !viewer.owns(appt) {
		return nil, ErrNotOwner
	}
	out, err := s.attach(ctx, []Appointment{*appt})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// Detail attaches doctor and patient display data to a single appointment.
func (s *Service) Detail(ctx context.Context, appt *Appointment) (*AppointmentDetail, error) {
	out, err := s.attach(ctx, []Appointment{*appt})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *Service) DoctorDashboard(ctx context.Context, doctorID uuid.UUID) (*DoctorDashboard, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, wrapLoad("doctor", err)
	}

	today := s.Today()
	tomorrow := today.AddDate(0, 0, 1)
	weekAhead := today.AddDate(0, 0, 7)

	todays, err := s.listDetails(ctx, Filter{DoctorID: &doctorID, Date: &today})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.listDetails(ctx, Filter{
		DoctorID: &doctorID,
		From:     &tomorrow,
		To:       &weekAhead,
		Statuses: ActiveStatuses,
	})
	if err != nil {
		return nil, err
	}

	billable := []AppointmentStatus{StatusConfirmed, StatusCompleted}
	todayCount, err := s.repo.CountAppointments(ctx, Filter{DoctorID: &doctorID, Date: &today, Statuses: billable})
	if err != nil {
		return nil, fmt.Errorf("count today's visits: %w", err)
	}
	weekStart, weekEnd := weekOf(today)
	weekCount, err := s.repo.CountAppointments(ctx, Filter{DoctorID: &doctorID, From: &weekStart, To: &weekEnd, Statuses: billable})
	if err != nil {
		return nil, fmt.Errorf("count week's visits: %w", err)
	}

	patients, err := s.patientVisits(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	return &DoctorDashboard{
		Today:        todays,
		NextSevenDay: upcoming,
		TodayRevenue: float64(todayCount) * doctor.ConsultationFee,
		WeekRevenue:  float64(weekCount) * doctor.ConsultationFee,
		Patients:     patients,
	}, nil
}

func (s *Service) PatientDashboard(ctx context.Context, patientID uuid.UUID) (*PatientDashboard, error) {
	today := s.Today()
	upcoming, err := s.listDetails(ctx, Filter{
		PatientID: &patientID,
		From:      &today,
		Statuses:  ActiveStatuses,
		Limit:     upcomingForPatient,
	})
	if err != nil {
		return nil, err
	}
	return &PatientDashboard{Upcoming: upcoming}, nil
}

// patientVisits counts every non-cancelled appointment per patient, most
// recent visitor first.
func (s *Service) patientVisits(ctx context.Context, doctorID uuid.UUID) ([]PatientVisits, error) {
	appts, err := s.repo.ListAppointments(ctx, Filter{
		DoctorID: &doctorID,
		Statuses: []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted},
	})
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}

	byPatient := make(map[uuid.UUID]*PatientVisits)
	for _, a := range appts {
		pv, ok := byPatient[a.PatientID]
		if !ok {
			p, err := s.repo.GetPatientByID(ctx, a.PatientID)
			if err != nil {
				if KindOf(err) != KindNotFound {
					return nil, fmt.Errorf("load patient: %w", err)
				}
				s.logger.Warn().Str("patient_id", a.PatientID.String()).Msg("skipping unknown patient")
				continue
			}
			pv = &PatientVisits{Patient: p}
			byPatient[a.PatientID] = pv
		}
		pv.Visits++
		if a.Date.After(pv.LastVisit) {
			pv.LastVisit = a.Date
		}
	}

	out := make([]PatientVisits, 0, len(byPatient))
	for _, pv := range byPatient {
		out = append(out, *pv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastVisit.Equal(out[j].LastVisit) {
			return out[i].LastVisit.After(out[j].LastVisit)
		}
		return out[i].Patient.ID.String() < out[j].Patient.ID.String()
	})
	return out, nil
}

func (s *Service) listDetails(ctx context.Context, f Filter) ([]AppointmentDetail, error) {
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.attach(ctx, appts)
}

// attach loads each referenced doctor and patient once. A missing profile
// leaves the field nil rather than failing the listing.
func (s *Service) attach(ctx context.Context, appts []Appointment) ([]AppointmentDetail, error) {
	doctors := make(map[uuid.UUID]*Doctor)
	patients := make(map[uuid.UUID]*Patient)

	out := make([]AppointmentDetail, 0, len(appts))
	for _, a := range appts {
		d, ok := doctors[a.DoctorID]
		if !ok {
			loaded, err := s.repo.GetDoctorByID(ctx, a.DoctorID)
			if err != nil && KindOf(err) != KindNotFound {
				return nil, fmt.Errorf("load doctor: %w", err)
			}
			d = loaded
			doctors[a.DoctorID] = d
		}
		p, ok := patients[a.PatientID]
		if !ok {
			loaded, err := s.repo.GetPatientByID(ctx, a.PatientID)
			if err != nil && KindOf(err) != KindNotFound {
				return nil, fmt.Errorf("load patient: %w", err)
			}
			p = loaded
			patients[a.PatientID] = p
		}
		out = append(out, AppointmentDetail{Appointment: a, Doctor: d, Patient: p})
	}
	return out, nil
}

// weekOf returns the Monday and Sunday around day.
func weekOf(day time.Time) (time.Time, time.Time) {
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}
