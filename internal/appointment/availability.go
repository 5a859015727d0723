package appointment

import (
	"context"
	"fmt"
	"time"
)

// IsDayOff reports whether day is one of the schedule's days off.
func (s Schedule) IsDayOff(day time.Time) bool {
	for _, off := range s.DaysOff {
		if sameDay(off, day) {
			return true
		}
	}
	return false
}

// SlotFor returns the first weekly slot for the weekday of day. Later entries
// for the same weekday are never consulted.
func (s Schedule) SlotFor(day time.Time) (*WeeklySlot, bool) {
	wd := WeekdayOf(day)
	for i := range s.WeeklySlots {
		if s.WeeklySlots[i].Day == wd {
			slot := s.WeeklySlots[i]
			return &slot, true
		}
	}
	return nil, false
}

// resolveSlot runs the schedule-only part of availability resolution. A nil
// slot with a reason means the day cannot be booked at all.
func resolveSlot(schedule Schedule, day time.Time) (*WeeklySlot, UnavailableReason) {
	if schedule.IsDayOff(day) {
		return nil, ReasonDayOff
	}
	slot, ok := schedule.SlotFor(day)
	if !ok {
		return nil, ReasonNotScheduled
	}
	return slot, ReasonNone
}

// capacityResult combines a resolved slot with the number of active bookings.
func capacityResult(slot *WeeklySlot, day time.Time, booked int) SlotResult {
	remaining := slot.MaxPatientsPerDay - booked
	res := SlotResult{
		Available: remaining > 0,
		Remaining: remaining,
		Slot:      slot,
		Date:      day,
	}
	if remaining <= 0 {
		res.Remaining = 0
		res.Reason = ReasonFullyBooked
	}
	return res
}

// ResolveAvailability answers how much capacity doctor has left on the clinic
// calendar day containing day. It issues at most one count query and never
// fails on an unavailable day; the reason is carried in the result instead.
func (s *Service) ResolveAvailability(ctx context.Context, doctor *Doctor, day time.Time) (SlotResult, error) {
	return s.resolveDay(ctx, doctor, CalendarDay(day, s.loc))
}

// resolveDay expects day already normalized to UTC midnight.
func (s *Service) resolveDay(ctx context.Context, doctor *Doctor, day time.Time) (SlotResult, error) {
	slot, reason := resolveSlot(doctor.Schedule, day)
	if slot == nil {
		return SlotResult{Available: false, Reason: reason, Date: day}, nil
	}

	doctorID := doctor.ID
	booked, err := s.repo.CountAppointments(ctx, Filter{
		DoctorID: &doctorID,
		Date:     &day,
		Statuses: ActiveStatuses,
	})
	if err != nil {
		return SlotResult{}, fmt.Errorf("count active appointments: %w", err)
	}

	return capacityResult(slot, day, booked), nil
}

// GetAvailability is the read path used by the doctor listing. Unavailable
// days are a successful empty answer.
func (s *Service) GetAvailability(ctx context.Context, doctorID string, rawDate string) (SlotResult, error) {
	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return SlotResult{}, err
	}
	day, err := ParseDay(rawDate, s.loc)
	if err != nil {
		return SlotResult{}, err
	}
	return s.resolveDay(ctx, doctor, day)
}

// unavailableError converts a negative result into the error a booking attempt
// reports.
func unavailableError(res SlotResult) error {
	switch res.Reason {
	case ReasonDayOff:
		return ErrDayOff
	case ReasonNotScheduled:
		return ErrNotScheduled.withMessage("doctor is not available on %ss", WeekdayOf(res.Date))
	default:
		return ErrNoSlotsAvailable
	}
}

// NormalizeWeeklySlots validates slots for storage and fills the default
// capacity.
func NormalizeWeeklySlots(slots []WeeklySlot) ([]WeeklySlot, error) {
	out := make([]WeeklySlot, 0, len(slots))
	for i, slot := range slots {
		if !slot.Day.Valid() {
			return nil, ErrInvalidSchedule.withMessage("slot %d: unknown day %q", i, slot.Day)
		}
		start, ok := parseClock(slot.StartTime)
		if !ok {
			return nil, ErrInvalidSchedule.withMessage("slot %d: start_time must be HH:MM", i)
		}
		end, ok := parseClock(slot.EndTime)
		if !ok {
			return nil, ErrInvalidSchedule.withMessage("slot %d: end_time must be HH:MM", i)
		}
		if end <= start {
			return nil, ErrInvalidSchedule.withMessage("slot %d: end_time must be after start_time", i)
		}
		if slot.MaxPatientsPerDay < 0 {
			return nil, ErrInvalidSchedule.withMessage("slot %d: max_patients_per_day must be positive", i)
		}
		if slot.MaxPatientsPerDay == 0 {
			slot.MaxPatientsPerDay = DefaultMaxPatientsPerDay
		}
		out = append(out, slot)
	}
	return out, nil
}
