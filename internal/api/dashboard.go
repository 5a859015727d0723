package api

import (
	"net/http"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func doctorDashboardHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctor, err := currentDoctor(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		dash, err := svc.DoctorDashboard(r.Context(), doctor.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := DoctorDashboardResponse{
			Today:        toDetailList(dash.Today),
			NextSevenDay: toDetailList(dash.NextSevenDay),
			TodayRevenue: dash.TodayRevenue,
			WeekRevenue:  dash.WeekRevenue,
			Patients:     make([]PatientVisitsResponse, 0, len(dash.Patients)),
		}
		for _, pv := range dash.Patients {
			resp.Patients = append(resp.Patients, PatientVisitsResponse{
				Patient:   toPatientResponse(pv.Patient),
				Visits:    pv.Visits,
				LastVisit: appointment.FormatDay(pv.LastVisit),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func patientDashboardHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := currentPatient(svc, r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		dash, err := svc.PatientDashboard(r.Context(), patient.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, PatientDashboardResponse{Upcoming: toDetailList(dash.Upcoming)})
	}
}
