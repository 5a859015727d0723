package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

// actorFor resolves the caller to the doctor or patient profile it acts as.
func actorFor(svc *appointment.Service, r *http.Request) (appointment.Actor, error) {
	id, _ := auth.FromContext(r.Context())
	switch id.Role {
	case appointment.RoleDoctor:
		d, err := svc.DoctorForUser(r.Context(), id.UserID)
		if err != nil {
			return appointment.Actor{}, err
		}
		return appointment.Actor{Role: appointment.RoleDoctor, ID: d.ID}, nil
	case appointment.RolePatient:
		p, err := svc.PatientForUser(r.Context(), id.UserID)
		if err != nil {
			return appointment.Actor{}, err
		}
		return appointment.Actor{Role: appointment.RolePatient, ID: p.ID}, nil
	}
	return appointment.Actor{}, appointment.ErrNotOwner
}

func currentDoctor(svc *appointment.Service, r *http.Request) (*appointment.Doctor, error) {
	id, _ := auth.FromContext(r.Context())
	return svc.DoctorForUser(r.Context(), id.UserID)
}

func currentPatient(svc *appointment.Service, r *http.Request) (*appointment.Patient, error) {
	id, _ := auth.FromContext(r.Context())
	return svc.PatientForUser(r.Context(), id.UserID)
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.CreateBooking(r.Context(), appointment.BookingRequest{
			DoctorID:  req.DoctorID,
			PatientID: patient.ID,
			Date:      req.Date,
			Reason:    req.Reason,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeDetail(w, r, svc, http.StatusCreated, appt)
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.RescheduleBooking(r.Context(), id, patient.ID, req.Date)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeDetail(w, r, svc, http.StatusOK, appt)
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		if err := svc.DeleteBooking(r.Context(), id, patient.ID); err != nil {
			handleError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func approveAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.Approve(r.Context(), id, doctor.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeDetail(w, r, svc, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		actor, err := actorFor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actor)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeDetail(w, r, svc, http.StatusOK, appt)
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.Complete(r.Context(), id, doctor.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeDetail(w, r, svc, http.StatusOK, appt)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		actor, err := actorFor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id, actor)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := appointment.ListFilter{
			Status: q.Get("status"),
			From:   q.Get("from"),
			To:     q.Get("to"),
		}
		var ok bool
		if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
			return
		}
		if filter.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
			return
		}

		actor, err := actorFor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		var details []appointment.AppointmentDetail
		if actor.Role == appointment.RoleDoctor {
			details, err = svc.ListDoctorAppointments(r.Context(), actor.ID, filter)
		} else {
			details, err = svc.ListPatientAppointments(r.Context(), actor.ID, filter)
		}
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailList(details))
	}
}

// writeDetail responds with appt plus doctor and patient display data.
func writeDetail(w http.ResponseWriter, r *http.Request, svc *appointment.Service, status int, appt *appointment.Appointment) {
	detail, err := svc.Detail(r.Context(), appt)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, status, toDetailResponse(detail))
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_query", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
