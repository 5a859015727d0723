package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, true},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(3))
	otherDoctor := f.approvedDoctor(mondaySlot(3))
	appt := f.mustBook(doctor, f.patient(), nextMonday)

	_, err := f.svc.Approve(f.ctx, appt.ID, otherDoctor.ID)
	expectErr(t, err, ErrNotOwner)

	if _, err := f.svc.Approve(f.ctx, appt.ID, doctor.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	_, err = f.svc.Approve(f.ctx, appt.ID, doctor.ID)
	expectErr(t, err, ErrInvalidStatusTransition)
	if KindOf(err) != KindConflict {
		t.Fatalf("kind = %s, want conflict", KindOf(err))
	}

	if _, err := f.svc.Complete(f.ctx, appt.ID, doctor.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err = f.svc.Approve(f.ctx, appt.ID, doctor.ID)
	expectErr(t, err, ErrInvalidStatusTransition)
}

func TestApprove_ReapprovalRechecksCapacity(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	a, b := f.patient(), f.patient()

	first := f.mustBook(doctor, a, nextMonday)
	if _, err := f.svc.Cancel(f.ctx, first.ID, Actor{Role: RoleDoctor, ID: doctor.ID}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.mustBook(doctor, b, nextMonday)

	_, err := f.svc.Approve(f.ctx, first.ID, doctor.ID)
	expectErr(t, err, ErrNoSlotsAvailable)
	if got := f.remaining(doctor, nextMonday); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
}

func TestApprove_ReapprovalWithRoom(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(2))
	appt := f.mustBook(doctor, f.patient(), nextMonday)

	if _, err := f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RoleDoctor, ID: doctor.ID}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	again, err := f.svc.Approve(f.ctx, appt.ID, doctor.ID)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if again.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", again.Status)
	}
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("remaining = %d, want 1", got)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	owner, stranger := f.patient(), f.patient()
	appt := f.mustBook(doctor, owner, nextMonday)

	_, err := f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RolePatient, ID: stranger.ID})
	expectErr(t, err, ErrNotOwner)

	_, err = f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RoleAdmin, ID: uuid.New()})
	expectErr(t, err, ErrNotOwner)

	cancelled, err := f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RolePatient, ID: owner.ID})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("remaining after cancel = %d, want 1", got)
	}

	_, err = f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RolePatient, ID: owner.ID})
	expectErr(t, err, ErrInvalidStatusTransition)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(1))
	appt := f.mustBook(doctor, f.patient(), nextMonday)

	_, err := f.svc.Complete(f.ctx, appt.ID, doctor.ID)
	expectErr(t, err, ErrInvalidStatusTransition)

	if _, err := f.svc.Approve(f.ctx, appt.ID, doctor.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	done, err := f.svc.Complete(f.ctx, appt.ID, doctor.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	// completed visits free the day's capacity
	if got := f.remaining(doctor, nextMonday); got != 1 {
		t.Fatalf("remaining = %d, want 1", got)
	}

	_, err = f.svc.Cancel(f.ctx, appt.ID, Actor{Role: RoleDoctor, ID: doctor.ID})
	expectErr(t, err, ErrInvalidStatusTransition)
}

func TestConcurrentBookingsNeverExceedCapacity(t *testing.T) {
	f := newFixture(t)
	const capacity = 3
	const attempts = 25
	doctor := f.approvedDoctor(mondaySlot(capacity))

	patients := make([]*Patient, attempts)
	for i := range patients {
		patients[i] = f.patient()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, full int
	for _, p := range patients {
		wg.Add(1)
		go func(p *Patient) {
			defer wg.Done()
			_, err := f.book(doctor, p, nextMonday)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrNoSlotsAvailable), errors.Is(err, ErrSlotBeingBooked):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p)
	}
	wg.Wait()

	if ok != capacity {
		t.Fatalf("successful bookings = %d, want %d", ok, capacity)
	}
	day, _ := ParseDay(nextMonday, time.UTC)
	n, _ := f.repo.CountAppointments(context.Background(), Filter{DoctorID: &doctor.ID, Date: &day, Statuses: ActiveStatuses})
	if n != capacity {
		t.Fatalf("stored active = %d, want %d", n, capacity)
	}
}

func TestSlotBeingBookedWhenLockIsHeld(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedDoctor(mondaySlot(3))
	day, _ := ParseDay(nextMonday, time.UTC)

	f.svc.locker = blockedLocker{}
	_, err := f.book(doctor, f.patient(), nextMonday)
	expectErr(t, err, ErrSlotBeingBooked)

	n, _ := f.repo.CountAppointments(f.ctx, Filter{DoctorID: &doctor.ID, Date: &day})
	if n != 0 {
		t.Fatalf("stored = %d, want 0", n)
	}
}
