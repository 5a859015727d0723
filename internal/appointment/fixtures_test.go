package appointment

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

// Wednesday 14 October 2026, mid-morning.
var testNow = time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC)

const (
	nextMonday    = "2026-10-19"
	nextTuesday   = "2026-10-20"
	lastMonday    = "2026-10-12"
	followingMon  = "2026-10-26"
	todayWeekday  = "2026-10-14"
	testTimeLimit = 2 * time.Second
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Kind
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	repo  *MemRepository
	notes *recordingNotifier
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureIn(t, "UTC")
}

// newFixtureIn builds a fixture whose clinic runs in the named time zone.
func newFixtureIn(t *testing.T, tz string) *fixture {
	t.Helper()
	repo := NewMemRepository()
	notes := &recordingNotifier{}
	svc := NewService(
		repo,
		redisclient.NewLocalLocker(testTimeLimit),
		notes,
		config.Config{ClinicTimezone: tz},
		zerolog.New(io.Discard),
		WithClock(func() time.Time { return testNow }),
	)
	return &fixture{t: t, ctx: context.Background(), repo: repo, notes: notes, svc: svc}
}

func (f *fixture) user(role Role) User {
	u := User{
		ID:        uuid.New(),
		Name:      gofakeit.Name(),
		Email:     gofakeit.Email(),
		Role:      role,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	f.repo.AddUser(u)
	return u
}

// approvedDoctor creates an approved doctor with the given weekly slots.
func (f *fixture) approvedDoctor(slots ...WeeklySlot) *Doctor {
	f.t.Helper()
	u := f.user(RoleDoctor)
	d, err := f.svc.CreateDoctorProfile(f.ctx, u.ID, DoctorProfileInput{
		Specialization:  "Cardiology",
		Experience:      10,
		ConsultationFee: 50,
		ClinicAddress:   gofakeit.Street(),
		WeeklySlots:     slots,
	})
	if err != nil {
		f.t.Fatalf("CreateDoctorProfile: %v", err)
	}
	if d, err = f.svc.ApproveDoctor(f.ctx, d.ID); err != nil {
		f.t.Fatalf("ApproveDoctor: %v", err)
	}
	return d
}

func (f *fixture) patient() *Patient {
	f.t.Helper()
	u := f.user(RolePatient)
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	p, err := f.svc.CreatePatientProfile(f.ctx, u.ID, PatientProfileInput{
		Gender:      "female",
		DateOfBirth: &dob,
		Address:     gofakeit.Street(),
	})
	if err != nil {
		f.t.Fatalf("CreatePatientProfile: %v", err)
	}
	return p
}

func (f *fixture) book(doctor *Doctor, patient *Patient, date string) (*Appointment, error) {
	return f.svc.CreateBooking(f.ctx, BookingRequest{
		DoctorID:  doctor.ID.String(),
		PatientID: patient.ID,
		Date:      date,
		Reason:    "checkup",
	})
}

func (f *fixture) mustBook(doctor *Doctor, patient *Patient, date string) *Appointment {
	f.t.Helper()
	a, err := f.book(doctor, patient, date)
	if err != nil {
		f.t.Fatalf("book %s: %v", date, err)
	}
	return a
}

func (f *fixture) remaining(doctor *Doctor, date string) int {
	f.t.Helper()
	res, err := f.svc.GetAvailability(f.ctx, doctor.ID.String(), date)
	if err != nil {
		f.t.Fatalf("GetAvailability: %v", err)
	}
	return res.Remaining
}

func mondaySlot(capacity int) WeeklySlot {
	return WeeklySlot{Day: Monday, StartTime: "09:00", EndTime: "12:00", MaxPatientsPerDay: capacity}
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("error = %v (%s), want %v", err, CodeOf(err), want)
	}
}

// blockedLocker behaves as if another instance always holds the key.
type blockedLocker struct{}

func (blockedLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
