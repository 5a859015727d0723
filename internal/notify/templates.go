package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type Kind string

const (
	KindAppointmentBooked      Kind = "appointment_booked"
	KindAppointmentRescheduled Kind = "appointment_rescheduled"
	KindAppointmentConfirmed   Kind = "appointment_confirmed"
	KindAppointmentCancelled   Kind = "appointment_cancelled"
	KindAppointmentCompleted   Kind = "appointment_completed"
	KindNewBookingForDoctor    Kind = "new_booking_for_doctor"
	KindPatientProfileCreated  Kind = "patient_profile_created"
	KindDoctorApproved         Kind = "doctor_approved"
)

// Data is the union of fields the templates read.
type Data struct {
	RecipientName string
	DoctorName    string
	PatientName   string
	Date          string
	StartTime     string
	EndTime       string
	Reason        string
}

type entry struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]entry{
	KindAppointmentBooked: {
		subject: "Appointment requested",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Your appointment with Dr. {{.DoctorName}} on {{.Date}} ({{.StartTime}} - {{.EndTime}}) has been booked and is waiting for the doctor's confirmation.</p>`),
	},
	KindAppointmentRescheduled: {
		subject: "Appointment rescheduled",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Your appointment with Dr. {{.DoctorName}} has moved to {{.Date}} ({{.StartTime}} - {{.EndTime}}).</p>`),
	},
	KindAppointmentConfirmed: {
		subject: "Appointment confirmed",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Dr. {{.DoctorName}} confirmed your appointment on {{.Date}} ({{.StartTime}} - {{.EndTime}}).</p>`),
	},
	KindAppointmentCancelled: {
		subject: "Appointment cancelled",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Your appointment with Dr. {{.DoctorName}} on {{.Date}} has been cancelled.</p>`),
	},
	KindAppointmentCompleted: {
		subject: "Thank you for your visit",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Your visit with Dr. {{.DoctorName}} on {{.Date}} is marked as completed.</p>`),
	},
	KindNewBookingForDoctor: {
		subject: "New appointment request",
		body: mustParse(`<h2>Hello Dr. {{.RecipientName}},</h2>
<p>{{.PatientName}} requested an appointment on {{.Date}}.{{if .Reason}} Reason: {{.Reason}}{{end}}</p>`),
	},
	KindPatientProfileCreated: {
		subject: "Patient profile created",
		body: mustParse(`<h2>Hello {{.RecipientName}},</h2>
<p>Your patient profile has been created. You can now book appointments with our doctors.</p>`),
	},
	KindDoctorApproved: {
		subject: "Your doctor profile is approved",
		body: mustParse(`<h2>Hello Dr. {{.RecipientName}},</h2>
<p>Your profile has been approved and patients can now book appointments with you.</p>`),
	},
}

func mustParse(body string) *template.Template {
	return template.Must(template.New("").Parse(body))
}

// Build renders the template for kind addressed to to.
func Build(kind Kind, to string, data Data) (Message, error) {
	e, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	var buf bytes.Buffer
	if err := e.body.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{
		Kind:    kind,
		To:      to,
		Subject: e.subject,
		HTML:    buf.String(),
	}, nil
}
