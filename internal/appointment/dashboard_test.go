package appointment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

func TestDoctorDashboard(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(
		WeeklySlot{Day: Wednesday, StartTime: "09:00", EndTime: "17:00", MaxPatientsPerDay: 5},
		mondaySlot(5),
	)
	a, b := f.patient(), f.patient()

	today1 := f.mustBook(doctor, a, todayWeekday)
	f.mustBook(doctor, b, todayWeekday)
	f.mustBook(doctor, a, nextMonday)
	f.mustBook(doctor, b, followingMon) // outside the 7 day window

	if _, err := f.svc.Approve(f.ctx, today1.ID, doctor.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	dash, err := f.svc.DoctorDashboard(f.ctx, doctor.ID)
	if err != nil {
		t.Fatalf("DoctorDashboard: %v", err)
	}
	if len(dash.Today) != 2 {
		t.Fatalf("today = %d, want 2", len(dash.Today))
	}
	if len(dash.NextSevenDay) != 1 || FormatDay(dash.NextSevenDay[0].Date) != nextMonday {
		t.Fatalf("next seven days = %+v", dash.NextSevenDay)
	}
	if dash.NextSevenDay[0].Patient == nil || dash.NextSevenDay[0].Patient.ID != a.ID {
		t.Fatalf("detail not attached: %+v", dash.NextSevenDay[0])
	}
	// only the confirmed visit is billable, at 50 per visit
	if dash.TodayRevenue != 50 || dash.WeekRevenue != 50 {
		t.Fatalf("revenue today/week = %v/%v, want 50/50", dash.TodayRevenue, dash.WeekRevenue)
	}
	if len(dash.Patients) != 2 {
		t.Fatalf("patients = %d, want 2", len(dash.Patients))
	}
	for _, pv := range dash.Patients {
		if pv.Visits != 2 {
			t.Fatalf("patient %s visits = %d, want 2", pv.Patient.ID, pv.Visits)
		}
	}
	if dash.Patients[0].Patient.ID != b.ID {
		t.Fatalf("most recent visitor should sort first")
	}
}

func TestPatientDashboard_NextThree(t *testing.T) {
	f := newFixture(t)
	p := f.patient()
	dates := []string{nextMonday, followingMon, "2026-11-02", "2026-11-09"}
	for range dates {
		f.approvedDoctor(mondaySlot(5))
	}
	doctors, _ := f.svc.ListDoctors(f.ctx, DoctorFilter{})
	for i, date := range dates {
		d := doctors[i]
		f.mustBook(&d, p, date)
	}

	dash, err := f.svc.PatientDashboard(f.ctx, p.ID)
	if err != nil {
		t.Fatalf("PatientDashboard: %v", err)
	}
	if len(dash.Upcoming) != 3 {
		t.Fatalf("upcoming = %d, want 3", len(dash.Upcoming))
	}
	if FormatDay(dash.Upcoming[0].Date) != nextMonday || FormatDay(dash.Upcoming[2].Date) != "2026-11-02" {
		t.Fatalf("order = %s..%s", FormatDay(dash.Upcoming[0].Date), FormatDay(dash.Upcoming[2].Date))
	}
}

func TestListDoctorAppointments_StatusAndRange(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	p1, p2 := f.patient(), f.patient()
	first := f.mustBook(doctor, p1, nextMonday)
	f.mustBook(doctor, p2, followingMon)
	if _, err := f.svc.Approve(f.ctx, first.ID, doctor.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := f.svc.ListDoctorAppointments(f.ctx, doctor.ID, ListFilter{Status: "confirmed"})
	if err != nil || len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("confirmed = %v, %v", got, err)
	}

	got, _ = f.svc.ListDoctorAppointments(f.ctx, doctor.ID, ListFilter{From: "2026-10-20", To: "2026-10-31"})
	if len(got) != 1 || FormatDay(got[0].Date) != followingMon {
		t.Fatalf("range = %v", got)
	}

	_, err = f.svc.ListDoctorAppointments(f.ctx, doctor.ID, ListFilter{Status: "lost"})
	if KindOf(err) != KindValidation {
		t.Fatalf("bad status err = %v", err)
	}
}

func TestGetAppointment_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	owner, other := f.patient(), f.patient()
	appt := f.mustBook(doctor, owner, nextMonday)

	if _, err := f.svc.GetAppointment(f.ctx, appt.ID, Actor{Role: RolePatient, ID: owner.ID}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetAppointment(f.ctx, appt.ID, Actor{Role: RoleDoctor, ID: doctor.ID}); err != nil {
		t.Fatalf("doctor read: %v", err)
	}
	_, err := f.svc.GetAppointment(f.ctx, appt.ID, Actor{Role: RolePatient, ID: other.ID})
	expectErr(t, err, ErrNotOwner)
}

func TestWeekOf(t *testing.T) {
	wed := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	start, end := weekOf(wed)
	if FormatDay(start) != "2026-10-12" || FormatDay(end) != "2026-10-18" {
		t.Fatalf("week = %s..%s", FormatDay(start), FormatDay(end))
	}
	sun := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	if start, _ := weekOf(sun); FormatDay(start) != "2026-10-12" {
		t.Fatalf("sunday week start = %s", FormatDay(start))
	}
}

// patientStoreDown fails patient reads the way a lost connection would.
type patientStoreDown struct {
	*MemRepository
}

func (patientStoreDown) GetPatientByID(context.Context, uuid.UUID) (*Patient, error) {
	return nil, errors.New("connection reset by peer")
}

func TestPatientVisits_StoreErrorsSurface(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	f.mustBook(doctor, f.patient(), nextMonday)

	// a booking whose patient profile no longer exists is skipped
	past, _ := ParseDay(lastMonday, time.UTC)
	if err := f.repo.CreateAppointment(f.ctx, &Appointment{
		ID: uuid.New(), DoctorID: doctor.ID, PatientID: uuid.New(), Date: past, Status: StatusCompleted,
	}); err != nil {
		t.Fatalf("seed orphan appointment: %v", err)
	}
	visits, err := f.svc.patientVisits(f.ctx, doctor.ID)
	if err != nil || len(visits) != 1 {
		t.Fatalf("patientVisits = %d, %v", len(visits), err)
	}

	down := NewService(
		patientStoreDown{f.repo},
		redisclient.NewLocalLocker(testTimeLimit),
		f.notes,
		config.Config{ClinicTimezone: "UTC"},
		zerolog.New(io.Discard),
		WithClock(func() time.Time { return testNow }),
	)
	if _, err := down.patientVisits(f.ctx, doctor.ID); err == nil {
		t.Fatalf("store failure was swallowed")
	}
	if _, err := down.DoctorDashboard(f.ctx, doctor.ID); err == nil {
		t.Fatalf("dashboard hid a store failure")
	}
}
