package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const testSecret = "router-secret"

// Wednesday 14 October 2026.
var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t    *testing.T
	repo *appointment.MemRepository
	svc  *appointment.Service
	srv  *httptest.Server
}

func newTestServer(t *testing.T, checks ...DependencyCheck) *testServer {
	t.Helper()
	repo := appointment.NewMemRepository()
	logger := zerolog.New(io.Discard)
	svc := appointment.NewService(
		repo,
		redisclient.NewLocalLocker(time.Second),
		notify.NewLogNotifier(logger),
		config.Config{ClinicTimezone: "UTC"},
		logger,
		appointment.WithClock(func() time.Time { return testNow }),
	)
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Service:  svc,
		Verifier: auth.NewVerifier(testSecret, ""),
		Logger:   logger,
		Checks:   checks,
		Env:      "test",
		Version:  "v0",
	}))
	t.Cleanup(func() {
		srv.Close()
		svc.Wait()
	})
	return &testServer{t: t, repo: repo, svc: svc, srv: srv}
}

// account registers a user and returns a bearer token for it.
func (s *testServer) account(role appointment.Role) string {
	s.t.Helper()
	u := appointment.User{
		ID:        uuid.New(),
		Name:      gofakeit.Name(),
		Email:     gofakeit.Email(),
		Role:      role,
		CreatedAt: testNow,
	}
	s.repo.AddUser(u)
	tok, err := auth.NewToken(testSecret, "", u.ID, role, time.Hour)
	if err != nil {
		s.t.Fatalf("NewToken: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.srv.Client().Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// approvedDoctor creates a doctor through the API and has an admin approve it.
func (s *testServer) approvedDoctor(capacity int) (string, DoctorResponse) {
	s.t.Helper()
	token := s.account(appointment.RoleDoctor)

	var d DoctorResponse
	code := s.do(http.MethodPost, "/doctors/profile", token, DoctorProfileRequest{
		Specialization:  "Cardiology",
		Experience:      7,
		ConsultationFee: 50,
		ClinicAddress:   "1 Main St",
		WeeklySlots: []appointment.WeeklySlot{
			{Day: appointment.Monday, StartTime: "09:00", EndTime: "12:00", MaxPatientsPerDay: capacity},
		},
	}, &d)
	if code != http.StatusCreated {
		s.t.Fatalf("create doctor profile = %d", code)
	}
	if d.IsApproved {
		s.t.Fatalf("new doctor already approved")
	}

	admin := s.account(appointment.RoleAdmin)
	if code := s.do(http.MethodPost, "/admin/doctors/"+d.ID.String()+"/approve", admin, nil, &d); code != http.StatusOK {
		s.t.Fatalf("approve doctor = %d", code)
	}
	return token, d
}

func (s *testServer) patient() string {
	s.t.Helper()
	token := s.account(appointment.RolePatient)
	code := s.do(http.MethodPost, "/patients/profile", token, PatientProfileRequest{
		Gender:      "female",
		DateOfBirth: "1990-05-01",
		Address:     "2 Elm St",
	}, nil)
	if code != http.StatusCreated {
		s.t.Fatalf("create patient profile = %d", code)
	}
	return token
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	doctorToken, doctor := s.approvedDoctor(1)
	alice, bob := s.patient(), s.patient()

	var appt AppointmentResponse
	code := s.do(http.MethodPost, "/appointments", alice, CreateAppointmentRequest{
		DoctorID: doctor.ID.String(),
		Date:     "2026-10-19",
		Reason:   "check-up",
	}, &appt)
	if code != http.StatusCreated {
		t.Fatalf("book = %d", code)
	}
	if appt.Status != "pending" || appt.StartTime != "09:00" || appt.Doctor == nil {
		t.Fatalf("appointment = %+v", appt)
	}

	var errBody ErrorResponse
	code = s.do(http.MethodPost, "/appointments", bob, CreateAppointmentRequest{
		DoctorID: doctor.ID.String(),
		Date:     "2026-10-19",
	}, &errBody)
	if code != http.StatusConflict || errBody.Error != "no_slots_available" || errBody.Details != "No slots available on this date" {
		t.Fatalf("full day = %d %+v", code, errBody)
	}

	code = s.do(http.MethodPost, "/appointments", bob, CreateAppointmentRequest{
		DoctorID: doctor.ID.String(),
		Date:     "2026-10-20",
	}, &errBody)
	if code != http.StatusUnprocessableEntity || errBody.Error != "not_scheduled" {
		t.Fatalf("unscheduled day = %d %+v", code, errBody)
	}

	code = s.do(http.MethodPost, "/appointments/"+appt.ID.String()+"/approve", doctorToken, nil, &appt)
	if code != http.StatusOK || appt.Status != "confirmed" {
		t.Fatalf("approve = %d %s", code, appt.Status)
	}

	code = s.do(http.MethodDelete, "/appointments/"+appt.ID.String(), alice, nil, &errBody)
	if code != http.StatusConflict || errBody.Error != "not_pending" {
		t.Fatalf("delete confirmed = %d %+v", code, errBody)
	}

	var list []AppointmentResponse
	if code := s.do(http.MethodGet, "/appointments?status=confirmed", doctorToken, nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("doctor list = %d %d", code, len(list))
	}
}

func TestBookingRequestValidation(t *testing.T) {
	s := newTestServer(t)
	_, doctor := s.approvedDoctor(3)
	p := s.patient()

	tests := []struct {
		name string
		body any
		code string
	}{
		{"missing doctor", CreateAppointmentRequest{Date: "2026-10-19"}, "missing_doctor_id"},
		{"past date", CreateAppointmentRequest{DoctorID: doctor.ID.String(), Date: "2026-10-12"}, "past_date"},
		{"bad date", CreateAppointmentRequest{DoctorID: doctor.ID.String(), Date: "19.10.2026"}, "invalid_date"},
		{"unknown field", map[string]string{"doctor_id": doctor.ID.String(), "date": "2026-10-19", "status": "confirmed"}, "invalid_request_body"},
	}
	for _, tt := range tests {
		var errBody ErrorResponse
		code := s.do(http.MethodPost, "/appointments", p, tt.body, &errBody)
		if code != http.StatusBadRequest || errBody.Error != tt.code {
			t.Fatalf("%s: %d %+v, want 400 %s", tt.name, code, errBody, tt.code)
		}
	}
}

func TestRoleAndOwnershipGuards(t *testing.T) {
	s := newTestServer(t)
	doctorToken, doctor := s.approvedDoctor(3)
	owner, stranger := s.patient(), s.patient()

	var appt AppointmentResponse
	if code := s.do(http.MethodPost, "/appointments", owner, CreateAppointmentRequest{DoctorID: doctor.ID.String(), Date: "2026-10-19"}, &appt); code != http.StatusCreated {
		t.Fatalf("book = %d", code)
	}

	if code := s.do(http.MethodPost, "/appointments", "", CreateAppointmentRequest{}, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous book = %d, want 401", code)
	}
	if code := s.do(http.MethodPost, "/appointments", doctorToken, CreateAppointmentRequest{}, nil); code != http.StatusForbidden {
		t.Fatalf("doctor book = %d, want 403", code)
	}
	if code := s.do(http.MethodPost, "/appointments/"+appt.ID.String()+"/approve", owner, nil, nil); code != http.StatusForbidden {
		t.Fatalf("patient approve = %d, want 403", code)
	}

	var errBody ErrorResponse
	code := s.do(http.MethodPut, "/appointments/"+appt.ID.String()+"/date", stranger, RescheduleRequest{Date: "2026-10-26"}, &errBody)
	if code != http.StatusForbidden || errBody.Error != "not_owner" {
		t.Fatalf("stranger reschedule = %d %+v", code, errBody)
	}
	if code := s.do(http.MethodGet, "/appointments/"+appt.ID.String(), stranger, nil, nil); code != http.StatusForbidden {
		t.Fatalf("stranger read = %d, want 403", code)
	}
	if code := s.do(http.MethodGet, "/appointments/not-a-uuid", owner, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id = %d, want 400", code)
	}
	if code := s.do(http.MethodGet, "/admin/doctors/pending", doctorToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("doctor on admin route = %d, want 403", code)
	}
}

func TestDoctorAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, doctor := s.approvedDoctor(2)
	p := s.patient()

	var avail AvailabilityResponse
	code := s.do(http.MethodGet, "/doctors/"+doctor.ID.String()+"/availability?date=2026-10-19", "", nil, &avail)
	if code != http.StatusOK || len(avail.Slots) != 1 || avail.Slots[0].Remaining != 2 || avail.Day != "Monday" {
		t.Fatalf("open day = %d %+v", code, avail)
	}

	if code := s.do(http.MethodPost, "/appointments", p, CreateAppointmentRequest{DoctorID: doctor.ID.String(), Date: "2026-10-19"}, nil); code != http.StatusCreated {
		t.Fatalf("book = %d", code)
	}
	s.do(http.MethodGet, "/doctors/"+doctor.ID.String()+"/availability?date=2026-10-19", "", nil, &avail)
	if avail.Slots[0].Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", avail.Slots[0].Remaining)
	}

	code = s.do(http.MethodGet, "/doctors/"+doctor.ID.String()+"/availability?date=2026-10-20", "", nil, &avail)
	if code != http.StatusOK || len(avail.Slots) != 0 || avail.Reason != string(appointment.ReasonNotScheduled) {
		t.Fatalf("unscheduled day = %d %+v", code, avail)
	}

	var errBody ErrorResponse
	if code := s.do(http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?date=2026-10-19", "", nil, &errBody); code != http.StatusNotFound || errBody.Error != "doctor_not_found" {
		t.Fatalf("unknown doctor = %d %+v", code, errBody)
	}
}

func TestPublicDirectoryHidesUnapprovedDoctors(t *testing.T) {
	s := newTestServer(t)
	_, approved := s.approvedDoctor(3)

	pendingToken := s.account(appointment.RoleDoctor)
	var pending DoctorResponse
	s.do(http.MethodPost, "/doctors/profile", pendingToken, DoctorProfileRequest{Specialization: "Cardiology", ClinicAddress: "x"}, &pending)

	var list []DoctorResponse
	if code := s.do(http.MethodGet, "/doctors?specialization=Cardiology", "", nil, &list); code != http.StatusOK {
		t.Fatalf("list = %d", code)
	}
	if len(list) != 1 || list[0].ID != approved.ID {
		t.Fatalf("public list = %+v", list)
	}
	if code := s.do(http.MethodGet, "/doctors/"+pending.ID.String(), "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("pending doctor read = %d, want 404", code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	down := errors.New("down")
	s := newTestServer(t,
		DependencyCheck{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		DependencyCheck{Name: "redis", Ping: func(context.Context) error { return down }},
	)

	if code := s.do(http.MethodGet, "/health/live", "", nil, nil); code != http.StatusOK {
		t.Fatalf("live = %d", code)
	}

	var ready ReadinessResponse
	code := s.do(http.MethodGet, "/health/ready", "", nil, &ready)
	if code != http.StatusOK || ready.Status != "degraded" || ready.Dependencies["redis"] != "down" {
		t.Fatalf("ready = %d %+v", code, ready)
	}

	failing := newTestServer(t,
		DependencyCheck{Name: "postgres", Critical: true, Ping: func(context.Context) error { return down }},
	)
	if code := failing.do(http.MethodGet, "/health/ready", "", nil, &ready); code != http.StatusServiceUnavailable {
		t.Fatalf("critical failure = %d, want 503", code)
	}
}

func TestPatientDirectoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	doctorToken, doctor := s.approvedDoctor(3)
	alice, bob := s.patient(), s.patient()

	var appt AppointmentResponse
	if code := s.do(http.MethodPost, "/appointments", alice, CreateAppointmentRequest{DoctorID: doctor.ID.String(), Date: "2026-10-19"}, &appt); code != http.StatusCreated {
		t.Fatalf("book = %d", code)
	}

	var patients []PatientResponse
	if code := s.do(http.MethodGet, "/patients?limit=10", doctorToken, nil, &patients); code != http.StatusOK || len(patients) != 2 {
		t.Fatalf("doctor list = %d %d", code, len(patients))
	}
	if code := s.do(http.MethodGet, "/patients", s.account(appointment.RoleAdmin), nil, nil); code != http.StatusOK {
		t.Fatalf("admin list = %d", code)
	}
	if code := s.do(http.MethodGet, "/patients", bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("patient list = %d, want 403", code)
	}

	var rec PatientRecordResponse
	code := s.do(http.MethodGet, "/patients/"+appt.PatientID.String(), doctorToken, nil, &rec)
	if code != http.StatusOK || rec.TotalVisits != 1 || len(rec.AppointmentHistory) != 1 {
		t.Fatalf("record = %d %+v", code, rec)
	}
	if rec.LastAppointment == nil || *rec.LastAppointment != "2026-10-19" || rec.Email == "" {
		t.Fatalf("record = %+v", rec)
	}
	if code := s.do(http.MethodGet, "/patients/"+appt.PatientID.String(), bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("patient reading a record = %d, want 403", code)
	}

	var errBody ErrorResponse
	code = s.do(http.MethodDelete, "/patients/profile", alice, nil, &errBody)
	if code != http.StatusConflict || errBody.Error != "patient_has_appointments" {
		t.Fatalf("delete with booking = %d %+v", code, errBody)
	}
	if code := s.do(http.MethodDelete, "/patients/profile", bob, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code := s.do(http.MethodGet, "/patients", doctorToken, nil, &patients); code != http.StatusOK || len(patients) != 1 {
		t.Fatalf("after delete = %d %d", code, len(patients))
	}
}
