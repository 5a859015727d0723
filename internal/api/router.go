package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier *auth.Verifier
	Logger   zerolog.Logger
	Checks   []DependencyCheck
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	svc := cfg.Service
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public doctor directory
	r.Get("/doctors", listDoctorsHandler(svc))
	r.Get("/doctors/{id}", getDoctorHandler(svc))
	r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(svc))

	r.Group(func(r chi.Router) {
		r.Use(cfg.Verifier.Middleware)

		r.Put("/users/me", updateUserHandler(svc))

		r.Route("/doctors/profile", func(r chi.Router) {
			r.Use(auth.RequireRole(appointment.RoleDoctor))
			r.Post("/", createDoctorProfileHandler(svc))
			r.Put("/", updateDoctorProfileHandler(svc))
			r.Delete("/", deleteDoctorProfileHandler(svc))
			r.Put("/schedule", setScheduleHandler(svc))
			r.Post("/days-off", addDayOffHandler(svc))
			r.Delete("/days-off/{date}", removeDayOffHandler(svc))
		})

		r.Route("/patients/profile", func(r chi.Router) {
			r.Use(auth.RequireRole(appointment.RolePatient))
			r.Post("/", createPatientProfileHandler(svc))
			r.Put("/", updatePatientProfileHandler(svc))
			r.Delete("/", deletePatientProfileHandler(svc))
		})

		r.With(auth.RequireRole(appointment.RoleDoctor, appointment.RoleAdmin)).Get("/patients", listPatientsHandler(svc))
		r.With(auth.RequireRole(appointment.RoleDoctor)).Get("/patients/{id}", patientRecordHandler(svc))

		r.Route("/appointments", func(r chi.Router) {
			r.With(auth.RequireRole(appointment.RolePatient)).Post("/", createAppointmentHandler(svc))
			r.With(auth.RequireRole(appointment.RoleDoctor, appointment.RolePatient)).Get("/", listAppointmentsHandler(svc))

			r.Route("/{id}", func(r chi.Router) {
				r.With(auth.RequireRole(appointment.RoleDoctor, appointment.RolePatient)).Get("/", getAppointmentHandler(svc))
				r.With(auth.RequireRole(appointment.RolePatient)).Put("/date", rescheduleAppointmentHandler(svc))
				r.With(auth.RequireRole(appointment.RolePatient)).Delete("/", deleteAppointmentHandler(svc))
				r.With(auth.RequireRole(appointment.RoleDoctor)).Post("/approve", approveAppointmentHandler(svc))
				r.With(auth.RequireRole(appointment.RoleDoctor, appointment.RolePatient)).Post("/cancel", cancelAppointmentHandler(svc))
				r.With(auth.RequireRole(appointment.RoleDoctor)).Post("/complete", completeAppointmentHandler(svc))
			})
		})

		r.With(auth.RequireRole(appointment.RoleDoctor)).Get("/dashboard/doctor", doctorDashboardHandler(svc))
		r.With(auth.RequireRole(appointment.RolePatient)).Get("/dashboard/patient", patientDashboardHandler(svc))

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(appointment.RoleAdmin))
			r.Get("/doctors/pending", listPendingDoctorsHandler(svc))
			r.Post("/doctors/{id}/approve", approveDoctorHandler(svc))
			r.Post("/doctors/{id}/reject", rejectDoctorHandler(svc))
		})
	})

	return r
}
