package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

func listDoctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.DoctorFilter{Specialization: q.Get("specialization")}

		var ok bool
		if f.MinFee, ok = queryFloat(w, q.Get("min_fee"), "min_fee"); !ok {
			return
		}
		if f.MaxFee, ok = queryFloat(w, q.Get("max_fee"), "max_fee"); !ok {
			return
		}
		if f.MinExperience, ok = queryIntPtr(w, q.Get("min_experience"), "min_experience"); !ok {
			return
		}
		if f.MaxExperience, ok = queryIntPtr(w, q.Get("max_experience"), "max_experience"); !ok {
			return
		}

		doctors, err := svc.ListDoctors(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorList(doctors))
	}
}

func getDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.GetDoctor(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func doctorAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.GetDoctor(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}

		res, err := svc.GetAvailability(r.Context(), d.ID.String(), r.URL.Query().Get("date"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(d.ID, res))
	}
}

func createDoctorProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		id, _ := auth.FromContext(r.Context())
		d, err := svc.CreateDoctorProfile(r.Context(), id.UserID, appointment.DoctorProfileInput{
			Specialization:  req.Specialization,
			Experience:      req.Experience,
			ConsultationFee: req.ConsultationFee,
			ClinicAddress:   req.ClinicAddress,
			WeeklySlots:     req.WeeklySlots,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctorResponse(d))
	}
}

func updateDoctorProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd appointment.DoctorProfileUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}

		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		d, err := svc.UpdateDoctorProfile(r.Context(), doctor.ID, upd)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func setScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		d, err := svc.SetWeeklySlots(r.Context(), doctor.ID, req.WeeklySlots)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func addDayOffHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DayOffRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		d, err := svc.AddDayOff(r.Context(), doctor.ID, req.Date)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func removeDayOffHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		d, err := svc.RemoveDayOff(r.Context(), doctor.ID, chi.URLParam(r, "date"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func deleteDoctorProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if err := svc.DeleteDoctorProfile(r.Context(), doctor.ID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createPatientProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := appointment.PatientProfileInput{
			Gender:         req.Gender,
			Address:        req.Address,
			MedicalHistory: req.MedicalHistory,
		}
		if req.DateOfBirth != "" {
			dob, err := appointment.ParseDay(req.DateOfBirth, nil)
			if err != nil {
				handleError(w, r, err)
				return
			}
			in.DateOfBirth = &dob
		}

		id, _ := auth.FromContext(r.Context())
		p, err := svc.CreatePatientProfile(r.Context(), id.UserID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPatientResponse(p))
	}
}

func updatePatientProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientProfileUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd := appointment.PatientProfileUpdate{
			Gender:         req.Gender,
			Address:        req.Address,
			MedicalHistory: req.MedicalHistory,
		}
		if req.DateOfBirth != nil {
			dob, err := appointment.ParseDay(*req.DateOfBirth, nil)
			if err != nil {
				handleError(w, r, err)
				return
			}
			upd.DateOfBirth = &dob
		}

		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		p, err := svc.UpdatePatientProfile(r.Context(), patient.ID, upd)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func deletePatientProfileHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if err := svc.DeletePatientProfile(r.Context(), patient.ID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listPatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, ok := queryInt(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := queryInt(w, q.Get("offset"), "offset")
		if !ok {
			return
		}

		patients, err := svc.ListPatients(r.Context(), limit, offset)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientList(patients))
	}
}

// patientRecordHandler shows a patient to the calling doctor with only the
// history that doctor holds.
func patientRecordHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		rec, err := svc.PatientRecordForDoctor(r.Context(), doctor.ID, chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientRecordResponse(rec))
	}
}

func updateUserHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd appointment.ProfileUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}

		id, _ := auth.FromContext(r.Context())
		u, err := svc.UpdateUserProfile(r.Context(), id.UserID, upd)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func listPendingDoctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListPendingDoctors(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorList(doctors))
	}
}

func approveDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		d, err := svc.ApproveDoctor(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func rejectDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		d, err := svc.RejectDoctor(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func queryFloat(w http.ResponseWriter, raw, name string) (*float64, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", name+" must be a number")
		return nil, false
	}
	return &v, true
}

func queryIntPtr(w http.ResponseWriter, raw, name string) (*int, bool) {
	if raw == "" {
		return nil, true
	}
	v, ok := queryInt(w, raw, name)
	if !ok {
		return nil, false
	}
	return &v, true
}
