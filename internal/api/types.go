package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Reason   string `json:"reason"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
}

type DoctorProfileRequest struct {
	Specialization  string                   `json:"specialization"`
	Experience      int                      `json:"experience"`
	ConsultationFee float64                  `json:"consultation_fee"`
	ClinicAddress   string                   `json:"clinic_address"`
	WeeklySlots     []appointment.WeeklySlot `json:"weekly_slots"`
}

type ScheduleRequest struct {
	WeeklySlots []appointment.WeeklySlot `json:"weekly_slots"`
}

type DayOffRequest struct {
	Date string `json:"date"`
}

type PatientProfileRequest struct {
	Gender         string   `json:"gender"`
	DateOfBirth    string   `json:"date_of_birth"`
	Address        string   `json:"address"`
	MedicalHistory []string `json:"medical_history"`
}

type PatientProfileUpdateRequest struct {
	Gender         *string  `json:"gender,omitempty"`
	DateOfBirth    *string  `json:"date_of_birth,omitempty"`
	Address        *string  `json:"address,omitempty"`
	MedicalHistory []string `json:"medical_history,omitempty"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone,omitempty"`
	Role  string    `json:"role"`
}

type DoctorResponse struct {
	ID              uuid.UUID                `json:"id"`
	UserID          uuid.UUID                `json:"user_id"`
	Name            string                   `json:"name,omitempty"`
	Email           string                   `json:"email,omitempty"`
	Specialization  string                   `json:"specialization"`
	Experience      int                      `json:"experience"`
	ConsultationFee float64                  `json:"consultation_fee"`
	ClinicAddress   string                   `json:"clinic_address"`
	WeeklySlots     []appointment.WeeklySlot `json:"weekly_slots"`
	DaysOff         []string                 `json:"days_off"`
	IsApproved      bool                     `json:"is_approved"`
	Status          string                   `json:"status"`
}

type PatientResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name,omitempty"`
	Email          string    `json:"email,omitempty"`
	Gender         string    `json:"gender"`
	DateOfBirth    *string   `json:"date_of_birth,omitempty"`
	Address        string    `json:"address"`
	MedicalHistory []string  `json:"medical_history"`
}

type PartySummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID     `json:"id"`
	DoctorID  uuid.UUID     `json:"doctor_id"`
	PatientID uuid.UUID     `json:"patient_id"`
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Status    string        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Doctor    *PartySummary `json:"doctor,omitempty"`
	Patient   *PartySummary `json:"patient,omitempty"`
}

// PatientRecordResponse is the doctor-facing view of one patient.
type PatientRecordResponse struct {
	PatientResponse
	Phone              *string               `json:"phone,omitempty"`
	TotalVisits        int                   `json:"total_visits"`
	LastAppointment    *string               `json:"last_appointment"`
	AppointmentHistory []AppointmentResponse `json:"appointment_history"`
}

type SlotResponse struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	MaxPatientsPerDay int    `json:"max_patients_per_day"`
	Remaining         int    `json:"remaining"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     string         `json:"date"`
	Day      string         `json:"day"`
	Slots    []SlotResponse `json:"slots"`
	Reason   string         `json:"reason,omitempty"`
}

type PatientVisitsResponse struct {
	Patient   PatientResponse `json:"patient"`
	Visits    int             `json:"visits"`
	LastVisit string          `json:"last_visit"`
}

type DoctorDashboardResponse struct {
	Today        []AppointmentResponse   `json:"today"`
	NextSevenDay []AppointmentResponse   `json:"next_seven_days"`
	TodayRevenue float64                 `json:"today_revenue"`
	WeekRevenue  float64                 `json:"week_revenue"`
	Patients     []PatientVisitsResponse `json:"patients"`
}

type PatientDashboardResponse struct {
	Upcoming []AppointmentResponse `json:"upcoming"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toUserResponse(u *appointment.User) UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Role:  string(u.Role),
	}
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	resp := DoctorResponse{
		ID:              d.ID,
		UserID:          d.UserID,
		Specialization:  d.Specialization,
		Experience:      d.Experience,
		ConsultationFee: d.ConsultationFee,
		ClinicAddress:   d.ClinicAddress,
		WeeklySlots:     d.Schedule.WeeklySlots,
		DaysOff:         make([]string, 0, len(d.Schedule.DaysOff)),
		IsApproved:      d.IsApproved,
		Status:          string(d.Status),
	}
	if resp.WeeklySlots == nil {
		resp.WeeklySlots = []appointment.WeeklySlot{}
	}
	for _, day := range d.Schedule.DaysOff {
		resp.DaysOff = append(resp.DaysOff, appointment.FormatDay(day))
	}
	if d.User != nil {
		resp.Name = d.User.Name
		resp.Email = d.User.Email
	}
	return resp
}

func toDoctorList(doctors []appointment.Doctor) []DoctorResponse {
	out := make([]DoctorResponse, 0, len(doctors))
	for i := range doctors {
		out = append(out, toDoctorResponse(&doctors[i]))
	}
	return out
}

func toPatientResponse(p *appointment.Patient) PatientResponse {
	resp := PatientResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Gender:         p.Gender,
		Address:        p.Address,
		MedicalHistory: p.MedicalHistory,
	}
	if resp.MedicalHistory == nil {
		resp.MedicalHistory = []string{}
	}
	if p.DateOfBirth != nil {
		dob := appointment.FormatDay(*p.DateOfBirth)
		resp.DateOfBirth = &dob
	}
	if p.User != nil {
		resp.Name = p.User.Name
		resp.Email = p.User.Email
	}
	return resp
}

func toPatientList(patients []appointment.Patient) []PatientResponse {
	out := make([]PatientResponse, 0, len(patients))
	for i := range patients {
		out = append(out, toPatientResponse(&patients[i]))
	}
	return out
}

func toPatientRecordResponse(rec *appointment.PatientRecord) PatientRecordResponse {
	resp := PatientRecordResponse{
		PatientResponse:    toPatientResponse(rec.Patient),
		TotalVisits:        rec.TotalVisits,
		AppointmentHistory: make([]AppointmentResponse, 0, len(rec.History)),
	}
	if rec.Patient.User != nil {
		resp.Phone = rec.Patient.User.Phone
	}
	if rec.LastAppointment != nil {
		last := appointment.FormatDay(*rec.LastAppointment)
		resp.LastAppointment = &last
	}
	for i := range rec.History {
		resp.AppointmentHistory = append(resp.AppointmentHistory, toAppointmentResponse(&rec.History[i]))
	}
	return resp
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      appointment.FormatDay(a.Date),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	if d.Doctor != nil {
		resp.Doctor = &PartySummary{ID: d.Doctor.ID}
		if d.Doctor.User != nil {
			resp.Doctor.Name = d.Doctor.User.Name
		}
	}
	if d.Patient != nil {
		resp.Patient = &PartySummary{ID: d.Patient.ID}
		if d.Patient.User != nil {
			resp.Patient.Name = d.Patient.User.Name
		}
	}
	return resp
}

func toDetailList(details []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(details))
	for i := range details {
		out = append(out, toDetailResponse(&details[i]))
	}
	return out
}

func toAvailabilityResponse(doctorID uuid.UUID, res appointment.SlotResult) AvailabilityResponse {
	resp := AvailabilityResponse{
		DoctorID: doctorID,
		Date:     appointment.FormatDay(res.Date),
		Day:      string(appointment.WeekdayOf(res.Date)),
		Slots:    []SlotResponse{},
		Reason:   string(res.Reason),
	}
	if res.Available && res.Slot != nil {
		resp.Slots = append(resp.Slots, SlotResponse{
			StartTime:         res.Slot.StartTime,
			EndTime:           res.Slot.EndTime,
			MaxPatientsPerDay: res.Slot.MaxPatientsPerDay,
			Remaining:         res.Remaining,
		})
	}
	return resp
}
