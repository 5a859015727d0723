package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemRepository keeps everything in process. It backs STORE_DRIVER=memory and
// the tests. Reads hand out copies so callers cannot mutate stored state.
type MemRepository struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]User
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		users:        make(map[uuid.UUID]User),
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

// AddUser registers an account. Accounts are created by the auth layer, so
// the Repository interface has no equivalent.
func (r *MemRepository) AddUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Events returns the recorded event log.
func (r *MemRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemRepository) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemRepository) UpdateUser(_ context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Phone != nil {
		phone := *upd.Phone
		u.Phone = &phone
	}
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return &u, nil
}

func (r *MemRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.doctors {
		if existing.UserID == d.UserID {
			return ErrProfileExists
		}
	}
	stored := cloneDoctor(*d)
	stored.User = nil
	r.doctors[d.ID] = stored
	return nil
}

func (r *MemRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return r.withDoctorUser(d), nil
}

func (r *MemRepository) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.UserID == userID {
			return r.withDoctorUser(d), nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemRepository) UpdateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.doctors[d.ID]
	if !ok {
		return ErrDoctorNotFound
	}
	stored := cloneDoctor(*d)
	stored.User = nil
	stored.UserID = existing.UserID
	stored.IsApproved = existing.IsApproved
	stored.Status = existing.Status
	stored.CreatedAt = existing.CreatedAt
	r.doctors[d.ID] = stored
	return nil
}

func (r *MemRepository) SetDoctorApproval(_ context.Context, id uuid.UUID, approved bool, status DoctorStatus) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.IsApproved = approved
	d.Status = status
	d.UpdatedAt = time.Now()
	r.doctors[id] = d
	return r.withDoctorUser(d), nil
}

func (r *MemRepository) ListDoctors(_ context.Context, f DoctorFilter) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Doctor
	for _, d := range r.doctors {
		if f.matches(&d) {
			out = append(out, *r.withDoctorUser(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemRepository) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.doctors, id)
	for apptID, a := range r.appointments {
		if a.DoctorID == id {
			delete(r.appointments, apptID)
		}
	}
	return nil
}

func (r *MemRepository) CreatePatient(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.UserID == p.UserID {
			return ErrProfileExists
		}
	}
	stored := clonePatient(*p)
	stored.User = nil
	r.patients[p.ID] = stored
	return nil
}

func (r *MemRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return r.withPatientUser(p), nil
}

func (r *MemRepository) GetPatientByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.UserID == userID {
			return r.withPatientUser(p), nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemRepository) ListPatients(_ context.Context, limit, offset int) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patient, 0, len(r.patients))
	for _, p := range r.patients {
		out = append(out, *r.withPatientUser(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemRepository) DeletePatient(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return ErrPatientNotFound
	}
	delete(r.patients, id)
	for apptID, a := range r.appointments {
		if a.PatientID == id {
			delete(r.appointments, apptID)
		}
	}
	return nil
}

func (r *MemRepository) UpdatePatient(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[p.ID]
	if !ok {
		return ErrPatientNotFound
	}
	stored := clonePatient(*p)
	stored.User = nil
	stored.UserID = existing.UserID
	stored.CreatedAt = existing.CreatedAt
	r.patients[p.ID] = stored
	return nil
}

func (r *MemRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemRepository) FindAppointment(_ context.Context, f Filter) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.filter(f)
	if len(matched) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &matched[0], nil
}

func (r *MemRepository) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.filter(f)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *MemRepository) CountAppointments(_ context.Context, f Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.appointments {
		if f.matches(&a) {
			n++
		}
	}
	return n, nil
}

func (r *MemRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status.Active() && r.activeClash(a, uuid.Nil) {
		return ErrDuplicateBooking
	}
	r.appointments[a.ID] = *a
	return nil
}

func (r *MemRepository) RescheduleAppointment(_ context.Context, id uuid.UUID, date time.Time, start, end string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrNotPending
	}
	a.Date = date
	a.StartTime = start
	a.EndTime = end
	if r.activeClash(&a, id) {
		return nil, ErrDuplicateBooking
	}
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if to.Active() && r.activeClash(&a, id) {
		return nil, ErrDuplicateBooking
	}
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.Status != StatusPending {
		return ErrNotPending
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// activeClash mirrors the partial unique index of the SQL schema.
func (r *MemRepository) activeClash(a *Appointment, self uuid.UUID) bool {
	for id, other := range r.appointments {
		if id == self || !other.Status.Active() {
			continue
		}
		if other.DoctorID == a.DoctorID && other.PatientID == a.PatientID && sameDay(other.Date, a.Date) {
			return true
		}
	}
	return false
}

func (r *MemRepository) filter(f Filter) []Appointment {
	var out []Appointment
	for _, a := range r.appointments {
		if f.matches(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemRepository) withDoctorUser(d Doctor) *Doctor {
	out := cloneDoctor(d)
	if u, ok := r.users[d.UserID]; ok {
		out.User = &u
	}
	return &out
}

func (r *MemRepository) withPatientUser(p Patient) *Patient {
	out := clonePatient(p)
	if u, ok := r.users[p.UserID]; ok {
		out.User = &u
	}
	return &out
}

func cloneDoctor(d Doctor) Doctor {
	d.Schedule.WeeklySlots = append([]WeeklySlot(nil), d.Schedule.WeeklySlots...)
	d.Schedule.DaysOff = append([]time.Time(nil), d.Schedule.DaysOff...)
	return d
}

func clonePatient(p Patient) Patient {
	p.MedicalHistory = append([]string(nil), p.MedicalHistory...)
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		p.DateOfBirth = &dob
	}
	return p
}
