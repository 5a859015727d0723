package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ActiveStatuses are the statuses that hold a unit of daily capacity.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type DoctorStatus string

const (
	DoctorPending  DoctorStatus = "pending"
	DoctorApproved DoctorStatus = "approved"
	DoctorRejected DoctorStatus = "rejected"
)

// DefaultMaxPatientsPerDay applies when a weekly slot is saved without a capacity.
const DefaultMaxPatientsPerDay = 20

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     *string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeeklySlot is one recurring weekly window with a per-day capacity.
type WeeklySlot struct {
	Day               Weekday `json:"day" bson:"day"`
	StartTime         string  `json:"start_time" bson:"start_time"`
	EndTime           string  `json:"end_time" bson:"end_time"`
	MaxPatientsPerDay int     `json:"max_patients_per_day" bson:"max_patients_per_day"`
}

type Schedule struct {
	WeeklySlots []WeeklySlot
	// DaysOff holds calendar days normalized to UTC midnight.
	DaysOff []time.Time
}

type Doctor struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Specialization  string
	Experience      int
	ConsultationFee float64
	ClinicAddress   string
	Schedule        Schedule
	IsApproved      bool
	Status          DoctorStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Populated by directory reads.
	User *User
}

type Patient struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Gender         string
	DateOfBirth    *time.Time
	Address        string
	MedicalHistory []string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	User *User
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	// Date is the calendar day at UTC midnight.
	Date      time.Time
	StartTime string
	EndTime   string
	Status    AppointmentStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor  *Doctor
	Patient *Patient
}

// SlotResult is the outcome of resolving a doctor's capacity for one calendar day.
type SlotResult struct {
	Available bool
	Reason    UnavailableReason
	Remaining int
	Slot      *WeeklySlot
	Date      time.Time
}

type UnavailableReason string

const (
	ReasonNone         UnavailableReason = ""
	ReasonDayOff       UnavailableReason = "day_off"
	ReasonNotScheduled UnavailableReason = "not_scheduled"
	ReasonFullyBooked  UnavailableReason = "fully_booked"
)

// Filter is a conjunction of predicates over appointments. Nil fields are ignored.
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      *time.Time
	From      *time.Time // inclusive calendar day
	To        *time.Time // inclusive calendar day
	Statuses  []AppointmentStatus
	ExcludeID *uuid.UUID
	Limit     int
	Offset    int
}

type DoctorFilter struct {
	Approved       *bool
	Specialization string
	MinFee         *float64
	MaxFee         *float64
	MinExperience  *int
	MaxExperience  *int
}

// ProfileUpdate lists the user fields a client may change.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type DoctorProfileUpdate struct {
	Specialization  *string  `json:"specialization,omitempty"`
	Experience      *int     `json:"experience,omitempty"`
	ConsultationFee *float64 `json:"consultation_fee,omitempty"`
	ClinicAddress   *string  `json:"clinic_address,omitempty"`
}

type PatientProfileUpdate struct {
	Gender         *string    `json:"gender,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Address        *string    `json:"address,omitempty"`
	MedicalHistory []string   `json:"medical_history,omitempty"`
}
