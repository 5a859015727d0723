package appointment

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

func TestBookingScenario(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(2))
	a, b, c := f.patient(), f.patient(), f.patient()

	apptA := f.mustBook(doctor, a, nextMonday)
	if apptA.Status != StatusPending {
		t.Fatalf("status = %s, want pending", apptA.Status)
	}
	if apptA.StartTime != "09:00" || apptA.EndTime != "12:00" {
		t.Fatalf("times = %s-%s, want 09:00-12:00", apptA.StartTime, apptA.EndTime)
	}
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("remaining after A = %d, want 1", got)
	}

	f.mustBook(doctor, b, nextMonday)
	if got := f.remaining(doctor, nextMonday); got != 0 {
		t.Fatalf("remaining after B = %d, want 0", got)
	}

	_, err := f.book(doctor, c, nextMonday)
	expectErr(t, err, ErrNoSlotsAvailable)
	if err.Error() != "No slots available on this date" {
		t.Fatalf("message = %q", err.Error())
	}

	confirmed, err := f.svc.Approve(f.ctx, apptA.ID, doctor.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}

	err = f.svc.DeleteBooking(f.ctx, apptA.ID, a.ID)
	expectErr(t, err, ErrNotPending)
	if err.Error() != "only pending appointments can be deleted" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	p := f.patient()

	tests := []struct {
		name     string
		doctorID string
		date     string
		want     error
	}{
		{"missing doctor", "", nextMonday, ErrMissingDoctorID},
		{"bad doctor id", "abc", nextMonday, ErrInvalidDoctorID},
		{"missing date", doctor.ID.String(), "", ErrMissingDate},
		{"bad date", doctor.ID.String(), "19/10/2026", ErrInvalidDate},
		{"past date", doctor.ID.String(), lastMonday, ErrPastDate},
		{"unknown doctor", uuid.NewString(), nextMonday, ErrDoctorNotFound},
		{"not scheduled", doctor.ID.String(), nextTuesday, ErrNotScheduled},
	}
	for _, tt := range tests {
		_, err := f.svc.CreateBooking(f.ctx, BookingRequest{DoctorID: tt.doctorID, PatientID: p.ID, Date: tt.date})
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		expectErr(t, err, tt.want)
	}
}

func TestCreateBooking_NotScheduledMessageNamesWeekday(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))

	_, err := f.book(doctor, f.patient(), nextTuesday)
	expectErr(t, err, ErrNotScheduled)
	if err.Error() != "doctor is not available on Tuesdays" {
		t.Fatalf("message = %q", err.Error())
	}
	if KindOf(err) != KindUnavailable {
		t.Fatalf("kind = %s, want unavailable", KindOf(err))
	}
}

func TestCreateBooking_TodayIsAllowed(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(WeeklySlot{Day: Wednesday, StartTime: "14:00", EndTime: "18:00", MaxPatientsPerDay: 3})

	appt := f.mustBook(doctor, f.patient(), todayWeekday)
	if FormatDay(appt.Date) != todayWeekday {
		t.Fatalf("date = %s", FormatDay(appt.Date))
	}
}

func TestCreateBooking_UnapprovedDoctorIsHidden(t *testing.T) {
	f := newFixture(t)
	u := f.user(RoleDoctor)
	d, err := f.svc.CreateDoctorProfile(f.ctx, u.ID, DoctorProfileInput{
		Specialization: "Dermatology",
		ClinicAddress:  "1 Main St",
		WeeklySlots:    []WeeklySlot{mondaySlot(5)},
	})
	if err != nil {
		t.Fatalf("CreateDoctorProfile: %v", err)
	}

	_, err = f.book(d, f.patient(), nextMonday)
	expectErr(t, err, ErrDoctorNotFound)
}

func TestCreateBooking_DayOff(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	if _, err := f.svc.AddDayOff(f.ctx, doctor.ID, nextMonday); err != nil {
		t.Fatalf("AddDayOff: %v", err)
	}

	_, err := f.book(doctor, f.patient(), nextMonday)
	expectErr(t, err, ErrDayOff)

	if _, err := f.svc.RemoveDayOff(f.ctx, doctor.ID, nextMonday); err != nil {
		t.Fatalf("RemoveDayOff: %v", err)
	}
	f.mustBook(doctor, f.patient(), nextMonday)
}

func TestCreateBooking_Duplicate(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	p := f.patient()

	first := f.mustBook(doctor, p, nextMonday)
	_, err := f.book(doctor, p, nextMonday)
	expectErr(t, err, ErrDuplicateBooking)

	// a cancelled booking no longer blocks the patient
	if _, err := f.svc.Cancel(f.ctx, first.ID, Actor{Role: RolePatient, ID: p.ID}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.mustBook(doctor, p, nextMonday)
}

func TestCreateBooking_DuplicateCheckedBeforeCapacity(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	p := f.patient()

	f.mustBook(doctor, p, nextMonday)
	_, err := f.book(doctor, p, nextMonday)
	expectErr(t, err, ErrDuplicateBooking)
}

func TestCreateBooking_NotifiesPatientAndDoctor(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(5))
	p := f.patient()

	f.mustBook(doctor, p, nextMonday)
	f.svc.Wait()

	var booked, forDoctor bool
	for _, k := range f.notes.kinds() {
		switch k {
		case notify.KindAppointmentBooked:
			booked = true
		case notify.KindNewBookingForDoctor:
			forDoctor = true
		}
	}
	if !booked || !forDoctor {
		t.Fatalf("notifications = %v", f.notes.kinds())
	}

	var created int
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventAppointmentCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("created events = %d, want 1", created)
	}
}

func TestRescheduleBooking(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1), WeeklySlot{Day: Tuesday, StartTime: "13:00", EndTime: "17:00", MaxPatientsPerDay: 1})
	p := f.patient()
	appt := f.mustBook(doctor, p, nextMonday)

	moved, err := f.svc.RescheduleBooking(f.ctx, appt.ID, p.ID, nextTuesday)
	if err != nil {
		t.Fatalf("RescheduleBooking: %v", err)
	}
	if FormatDay(moved.Date) != nextTuesday || moved.StartTime != "13:00" || moved.EndTime != "17:00" {
		t.Fatalf("moved = %s %s-%s", FormatDay(moved.Date), moved.StartTime, moved.EndTime)
	}
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("monday remaining = %d, want 1", got)
	}
	if got := f.remaining(doctor, nextTuesday); got != 0 {
		t.Fatalf("tuesday remaining = %d, want 0", got)
	}
}

func TestRescheduleBooking_SameDayDoesNotCountItself(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	p := f.patient()
	appt := f.mustBook(doctor, p, nextMonday)

	if _, err := f.svc.RescheduleBooking(f.ctx, appt.ID, p.ID, nextMonday); err != nil {
		t.Fatalf("RescheduleBooking to same day: %v", err)
	}
}

func TestRescheduleBooking_Rules(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1), WeeklySlot{Day: Tuesday, StartTime: "13:00", EndTime: "17:00", MaxPatientsPerDay: 1})
	owner, other := f.patient(), f.patient()
	appt := f.mustBook(doctor, owner, nextMonday)

	_, err := f.svc.RescheduleBooking(f.ctx, appt.ID, owner.ID, "")
	expectErr(t, err, ErrMissingDate)

	_, err = f.svc.RescheduleBooking(f.ctx, uuid.New(), owner.ID, nextTuesday)
	expectErr(t, err, ErrAppointmentNotFound)

	_, err = f.svc.RescheduleBooking(f.ctx, appt.ID, other.ID, nextTuesday)
	expectErr(t, err, ErrNotOwner)

	_, err = f.svc.RescheduleBooking(f.ctx, appt.ID, owner.ID, lastMonday)
	expectErr(t, err, ErrPastDate)

	f.mustBook(doctor, other, nextTuesday)
	_, err = f.svc.RescheduleBooking(f.ctx, appt.ID, owner.ID, nextTuesday)
	expectErr(t, err, ErrNoSlotsAvailable)

	if _, err := f.svc.Approve(f.ctx, appt.ID, doctor.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	_, err = f.svc.RescheduleBooking(f.ctx, appt.ID, owner.ID, followingMon)
	expectErr(t, err, ErrNotPending)
}

func TestDeleteBooking(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	owner, other := f.patient(), f.patient()
	appt := f.mustBook(doctor, owner, nextMonday)

	expectErr(t, f.svc.DeleteBooking(f.ctx, appt.ID, other.ID), ErrNotOwner)

	if err := f.svc.DeleteBooking(f.ctx, appt.ID, owner.ID); err != nil {
		t.Fatalf("DeleteBooking: %v", err)
	}
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("remaining after delete = %d, want 1", got)
	}
	expectErr(t, f.svc.DeleteBooking(f.ctx, appt.ID, owner.ID), ErrAppointmentNotFound)
}
