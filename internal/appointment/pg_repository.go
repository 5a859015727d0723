package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const userColumns = `u.id, u.name, u.email, u.phone, u.role, u.created_at, u.updated_at`

const doctorColumns = `d.id, d.user_id, d.specialization, d.experience, d.consultation_fee, d.clinic_address,
	d.weekly_slots, d.days_off, d.is_approved, d.status, d.created_at, d.updated_at, ` + userColumns

const patientColumns = `p.id, p.user_id, p.gender, p.date_of_birth, p.address, p.medical_history,
	p.created_at, p.updated_at, ` + userColumns

const appointmentColumns = `id, doctor_id, patient_id, date, start_time, end_time, status, reason, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var u User
	var slots []byte

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Specialization,
		&d.Experience,
		&d.ConsultationFee,
		&d.ClinicAddress,
		&slots,
		&d.Schedule.DaysOff,
		&d.IsApproved,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &d.Schedule.WeeklySlots); err != nil {
			return nil, fmt.Errorf("decode weekly slots for doctor %s: %w", d.ID, err)
		}
	}
	d.User = &u
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var u User

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Gender,
		&p.DateOfBirth,
		&p.Address,
		&p.MedicalHistory,
		&p.CreatedAt,
		&p.UpdatedAt,
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.User = &u
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// whereClause renders f as SQL predicates with positional arguments.
func (f Filter) whereClause() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Date != nil {
		add("date = $%d", *f.Date)
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date <= $%d", *f.To)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.ExcludeID != nil {
		add("id <> $%d", *f.ExcludeID)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f DoctorFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Approved != nil {
		add("d.is_approved = $%d", *f.Approved)
	}
	if f.Specialization != "" {
		add("d.specialization = $%d", f.Specialization)
	}
	if f.MinFee != nil {
		add("d.consultation_fee >= $%d", *f.MinFee)
	}
	if f.MaxFee != nil {
		add("d.consultation_fee <= $%d", *f.MaxFee)
	}
	if f.MinExperience != nil {
		add("d.experience >= $%d", *f.MinExperience)
	}
	if f.MaxExperience != nil {
		add("d.experience <= $%d", *f.MaxExperience)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Users

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) UpdateUser(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users u
		SET name = COALESCE($2, u.name),
		    email = COALESCE($3, u.email),
		    phone = COALESCE($4, u.phone),
		    updated_at = now()
		WHERE u.id = $1
		RETURNING `+userColumns,
		id, upd.Name, upd.Email, upd.Phone)

	u, err := scanUser(row)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrProfileExists.withMessage("email is already in use")
	}
	return u, err
}

// CreateUser inserts an account. Only the seeder calls it; sign-up lives
// outside this service.
func (r *PgRepository) CreateUser(ctx context.Context, u User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, u.ID, u.Name, u.Email, u.Phone, string(u.Role), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists.withMessage("email is already in use")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Doctors

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	slots, err := json.Marshal(d.Schedule.WeeklySlots)
	if err != nil {
		return fmt.Errorf("encode weekly slots: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO doctors (id, user_id, specialization, experience, consultation_fee, clinic_address,
		                     weekly_slots, days_off, is_approved, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, d.ID, d.UserID, d.Specialization, d.Experience, d.ConsultationFee, d.ClinicAddress,
		slots, daysOrEmpty(d.Schedule.DaysOff), d.IsApproved, d.Status, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists.withMessage("doctor profile already exists")
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1
	`, userID)
	return scanDoctor(row)
}

// UpdateDoctor writes profile and schedule fields. Approval is only changed
// through SetDoctorApproval.
func (r *PgRepository) UpdateDoctor(ctx context.Context, d *Doctor) error {
	slots, err := json.Marshal(d.Schedule.WeeklySlots)
	if err != nil {
		return fmt.Errorf("encode weekly slots: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET specialization = $2,
		    experience = $3,
		    consultation_fee = $4,
		    clinic_address = $5,
		    weekly_slots = $6,
		    days_off = $7,
		    updated_at = now()
		WHERE id = $1
	`, d.ID, d.Specialization, d.Experience, d.ConsultationFee, d.ClinicAddress,
		slots, daysOrEmpty(d.Schedule.DaysOff))
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) SetDoctorApproval(ctx context.Context, id uuid.UUID, approved bool, status DoctorStatus) (*Doctor, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET is_approved = $2,
		    status = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, approved, status)
	if err != nil {
		return nil, fmt.Errorf("set doctor approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDoctorNotFound
	}
	return r.GetDoctorByID(ctx, id)
}

func (r *PgRepository) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	where, args := f.whereClause()
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN users u ON u.id = d.user_id`+where+`
		ORDER BY d.created_at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Patients

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, user_id, gender, date_of_birth, address, medical_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, p.ID, p.UserID, p.Gender, p.DateOfBirth, p.Address, stringsOrEmpty(p.MedicalHistory), p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists.withMessage("patient profile already exists")
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET gender = $2,
		    date_of_birth = $3,
		    address = $4,
		    medical_history = $5,
		    updated_at = now()
		WHERE id = $1
	`, p.ID, p.Gender, p.DateOfBirth, p.Address, stringsOrEmpty(p.MedicalHistory))
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.created_at, p.id`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeletePatient removes the profile; its appointments go with it through the
// foreign key cascade.
func (r *PgRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindAppointment(ctx context.Context, f Filter) (*Appointment, error) {
	where, args := f.whereClause()
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments`+where+`
		ORDER BY date, created_at
		LIMIT 1
	`, args...)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	where, args := f.whereClause()
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments` + where + `
		ORDER BY date, created_at`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountAppointments(ctx context.Context, f Filter) (int, error) {
	where, args := f.whereClause()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments`+where, args...).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, start_time, end_time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.DoctorID, a.PatientID, a.Date, a.StartTime, a.EndTime, a.Status, a.Reason, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, start, end string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns,
		id, date, start, end)

	a, err := scanAppointment(row)
	switch {
	case err == nil:
		return a, nil
	case isUniqueViolation(err):
		return nil, ErrDuplicateBooking
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, r.notPendingOrMissing(ctx, id)
	default:
		return nil, err
	}
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	a, err := scanAppointment(row)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrDuplicateBooking
	}
	return a, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.notPendingOrMissing(ctx, id)
	}
	return nil
}

// notPendingOrMissing explains why a pending-only write touched no rows.
func (r *PgRepository) notPendingOrMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetAppointmentByID(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func daysOrEmpty(days []time.Time) []time.Time {
	if days == nil {
		return []time.Time{}
	}
	return days
}

func stringsOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
