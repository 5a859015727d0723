package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores each entity as a document keyed by its uuid string.
type MongoRepository struct {
	users        *mongo.Collection
	doctors      *mongo.Collection
	patients     *mongo.Collection
	appointments *mongo.Collection
	events       *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		users:        db.Collection("users"),
		doctors:      db.Collection("doctors"),
		patients:     db.Collection("patients"),
		appointments: db.Collection("appointments"),
		events:       db.Collection("event_logs"),
	}
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Phone     *string   `bson:"phone,omitempty"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type doctorDoc struct {
	ID              string       `bson:"_id"`
	UserID          string       `bson:"user_id"`
	Specialization  string       `bson:"specialization"`
	Experience      int          `bson:"experience"`
	ConsultationFee float64      `bson:"consultation_fee"`
	ClinicAddress   string       `bson:"clinic_address"`
	WeeklySlots     []WeeklySlot `bson:"weekly_slots"`
	DaysOff         []time.Time  `bson:"days_off"`
	IsApproved      bool         `bson:"is_approved"`
	Status          string       `bson:"status"`
	CreatedAt       time.Time    `bson:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at"`
}

type patientDoc struct {
	ID             string     `bson:"_id"`
	UserID         string     `bson:"user_id"`
	Gender         string     `bson:"gender"`
	DateOfBirth    *time.Time `bson:"date_of_birth,omitempty"`
	Address        string     `bson:"address"`
	MedicalHistory []string   `bson:"medical_history"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

type appointmentDoc struct {
	ID        string    `bson:"_id"`
	DoctorID  string    `bson:"doctor_id"`
	PatientID string    `bson:"patient_id"`
	Date      time.Time `bson:"date"`
	StartTime string    `bson:"start_time"`
	EndTime   string    `bson:"end_time"`
	Status    string    `bson:"status"`
	Reason    string    `bson:"reason"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type eventDoc struct {
	EventType     string    `bson:"event_type"`
	AppointmentID *string   `bson:"appointment_id,omitempty"`
	Payload       string    `bson:"payload,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d userDoc) model() (*User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", d.ID, err)
	}
	return &User{
		ID:        id,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Role:      Role(d.Role),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func toDoctorDoc(d *Doctor) doctorDoc {
	return doctorDoc{
		ID:              d.ID.String(),
		UserID:          d.UserID.String(),
		Specialization:  d.Specialization,
		Experience:      d.Experience,
		ConsultationFee: d.ConsultationFee,
		ClinicAddress:   d.ClinicAddress,
		WeeklySlots:     d.Schedule.WeeklySlots,
		DaysOff:         d.Schedule.DaysOff,
		IsApproved:      d.IsApproved,
		Status:          string(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (d doctorDoc) model() (*Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("doctor %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("doctor %q user: %w", d.ID, err)
	}
	days := make([]time.Time, len(d.DaysOff))
	for i, day := range d.DaysOff {
		days[i] = day.UTC()
	}
	return &Doctor{
		ID:              id,
		UserID:          userID,
		Specialization:  d.Specialization,
		Experience:      d.Experience,
		ConsultationFee: d.ConsultationFee,
		ClinicAddress:   d.ClinicAddress,
		Schedule:        Schedule{WeeklySlots: d.WeeklySlots, DaysOff: days},
		IsApproved:      d.IsApproved,
		Status:          DoctorStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func toPatientDoc(p *Patient) patientDoc {
	return patientDoc{
		ID:             p.ID.String(),
		UserID:         p.UserID.String(),
		Gender:         p.Gender,
		DateOfBirth:    p.DateOfBirth,
		Address:        p.Address,
		MedicalHistory: p.MedicalHistory,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (d patientDoc) model() (*Patient, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("patient %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("patient %q user: %w", d.ID, err)
	}
	return &Patient{
		ID:             id,
		UserID:         userID,
		Gender:         d.Gender,
		DateOfBirth:    d.DateOfBirth,
		Address:        d.Address,
		MedicalHistory: d.MedicalHistory,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

func toAppointmentDoc(a *Appointment) appointmentDoc {
	return appointmentDoc{
		ID:        a.ID.String(),
		DoctorID:  a.DoctorID.String(),
		PatientID: a.PatientID.String(),
		Date:      a.Date,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d appointmentDoc) model() (*Appointment, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("appointment %q: %w", d.ID, err)
	}
	doctorID, err := uuid.Parse(d.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("appointment %q doctor: %w", d.ID, err)
	}
	patientID, err := uuid.Parse(d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("appointment %q patient: %w", d.ID, err)
	}
	return &Appointment{
		ID:        id,
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      d.Date.UTC(),
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Status:    AppointmentStatus(d.Status),
		Reason:    d.Reason,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// bsonFilter renders f as a query document.
func (f Filter) bsonFilter() bson.M {
	q := bson.M{}
	if f.DoctorID != nil {
		q["doctor_id"] = f.DoctorID.String()
	}
	if f.PatientID != nil {
		q["patient_id"] = f.PatientID.String()
	}
	if f.Date != nil {
		q["date"] = *f.Date
	} else if f.From != nil || f.To != nil {
		rng := bson.M{}
		if f.From != nil {
			rng["$gte"] = *f.From
		}
		if f.To != nil {
			rng["$lte"] = *f.To
		}
		q["date"] = rng
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": statusStrings(f.Statuses)}
	}
	if f.ExcludeID != nil {
		q["_id"] = bson.M{"$ne": f.ExcludeID.String()}
	}
	return q
}

func (f DoctorFilter) bsonFilter() bson.M {
	q := bson.M{}
	if f.Approved != nil {
		q["is_approved"] = *f.Approved
	}
	if f.Specialization != "" {
		q["specialization"] = f.Specialization
	}
	if f.MinFee != nil || f.MaxFee != nil {
		rng := bson.M{}
		if f.MinFee != nil {
			rng["$gte"] = *f.MinFee
		}
		if f.MaxFee != nil {
			rng["$lte"] = *f.MaxFee
		}
		q["consultation_fee"] = rng
	}
	if f.MinExperience != nil || f.MaxExperience != nil {
		rng := bson.M{}
		if f.MinExperience != nil {
			rng["$gte"] = *f.MinExperience
		}
		if f.MaxExperience != nil {
			rng["$lte"] = *f.MaxExperience
		}
		q["experience"] = rng
	}
	return q
}

var appointmentOrder = bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}}

// Users

// CreateUser inserts an account. Only the seeder calls it; sign-up lives
// outside this service.
func (r *MongoRepository) CreateUser(ctx context.Context, u User) error {
	doc := userDoc{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.CreatedAt,
	}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProfileExists.withMessage("email is already in use")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var doc userDoc
	err := r.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return doc.model()
}

func (r *MongoRepository) UpdateUser(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}

	var doc userDoc
	err := r.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrProfileExists.withMessage("email is already in use")
		}
		return nil, err
	}
	return doc.model()
}

// usersByID loads the accounts referenced by ids in one query.
func (r *MongoRepository) usersByID(ctx context.Context, ids []string) (map[string]*User, error) {
	out := make(map[string]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		u, err := d.model()
		if err != nil {
			return nil, err
		}
		out[d.ID] = u
	}
	return out, nil
}

// Doctors

func (r *MongoRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if _, err := r.doctors.InsertOne(ctx, toDoctorDoc(d)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProfileExists.withMessage("doctor profile already exists")
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *MongoRepository) findDoctor(ctx context.Context, filter bson.M) (*Doctor, error) {
	var doc doctorDoc
	if err := r.doctors.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	d, err := doc.model()
	if err != nil {
		return nil, err
	}
	users, err := r.usersByID(ctx, []string{doc.UserID})
	if err != nil {
		return nil, err
	}
	d.User = users[doc.UserID]
	return d, nil
}

func (r *MongoRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.findDoctor(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.findDoctor(ctx, bson.M{"user_id": userID.String()})
}

func (r *MongoRepository) UpdateDoctor(ctx context.Context, d *Doctor) error {
	res, err := r.doctors.UpdateOne(ctx, bson.M{"_id": d.ID.String()}, bson.M{"$set": bson.M{
		"specialization":   d.Specialization,
		"experience":       d.Experience,
		"consultation_fee": d.ConsultationFee,
		"clinic_address":   d.ClinicAddress,
		"weekly_slots":     d.Schedule.WeeklySlots,
		"days_off":         d.Schedule.DaysOff,
		"updated_at":       time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *MongoRepository) SetDoctorApproval(ctx context.Context, id uuid.UUID, approved bool, status DoctorStatus) (*Doctor, error) {
	res, err := r.doctors.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{
		"is_approved": approved,
		"status":      string(status),
		"updated_at":  time.Now().UTC(),
	}})
	if err != nil {
		return nil, fmt.Errorf("set doctor approval: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrDoctorNotFound
	}
	return r.GetDoctorByID(ctx, id)
}

func (r *MongoRepository) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	cur, err := r.doctors.Find(ctx, f.bsonFilter(), options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []doctorDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		userIDs = append(userIDs, d.UserID)
	}
	users, err := r.usersByID(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	result := make([]Doctor, 0, len(docs))
	for _, doc := range docs {
		d, err := doc.model()
		if err != nil {
			return nil, err
		}
		d.User = users[doc.UserID]
		result = append(result, *d)
	}
	return result, nil
}

func (r *MongoRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	res, err := r.doctors.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrDoctorNotFound
	}
	if _, err := r.appointments.DeleteMany(ctx, bson.M{"doctor_id": id.String()}); err != nil {
		return fmt.Errorf("delete doctor appointments: %w", err)
	}
	return nil
}

// Patients

func (r *MongoRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if _, err := r.patients.InsertOne(ctx, toPatientDoc(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrProfileExists.withMessage("patient profile already exists")
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *MongoRepository) findPatient(ctx context.Context, filter bson.M) (*Patient, error) {
	var doc patientDoc
	if err := r.patients.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p, err := doc.model()
	if err != nil {
		return nil, err
	}
	users, err := r.usersByID(ctx, []string{doc.UserID})
	if err != nil {
		return nil, err
	}
	p.User = users[doc.UserID]
	return p, nil
}

func (r *MongoRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.findPatient(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return r.findPatient(ctx, bson.M{"user_id": userID.String()})
}

func (r *MongoRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	res, err := r.patients.UpdateOne(ctx, bson.M{"_id": p.ID.String()}, bson.M{"$set": bson.M{
		"gender":          p.Gender,
		"date_of_birth":   p.DateOfBirth,
		"address":         p.Address,
		"medical_history": p.MedicalHistory,
		"updated_at":      time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *MongoRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cur, err := r.patients.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []patientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		userIDs = append(userIDs, d.UserID)
	}
	users, err := r.usersByID(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	result := make([]Patient, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.model()
		if err != nil {
			return nil, err
		}
		p.User = users[doc.UserID]
		result = append(result, *p)
	}
	return result, nil
}

func (r *MongoRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	res, err := r.patients.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrPatientNotFound
	}
	if _, err := r.appointments.DeleteMany(ctx, bson.M{"patient_id": id.String()}); err != nil {
		return fmt.Errorf("delete patient appointments: %w", err)
	}
	return nil
}

// Appointments

func decodeAppointment(res *mongo.SingleResult) (*Appointment, error) {
	var doc appointmentDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return doc.model()
}

func (r *MongoRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return decodeAppointment(r.appointments.FindOne(ctx, bson.M{"_id": id.String()}))
}

func (r *MongoRepository) FindAppointment(ctx context.Context, f Filter) (*Appointment, error) {
	return decodeAppointment(r.appointments.FindOne(ctx, f.bsonFilter(), options.FindOne().SetSort(appointmentOrder)))
}

func (r *MongoRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	opts := options.Find().SetSort(appointmentOrder)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := r.appointments.Find(ctx, f.bsonFilter(), opts)
	if err != nil {
		return nil, err
	}
	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]Appointment, 0, len(docs))
	for _, doc := range docs {
		a, err := doc.model()
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *MongoRepository) CountAppointments(ctx context.Context, f Filter) (int, error) {
	n, err := r.appointments.CountDocuments(ctx, f.bsonFilter())
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *MongoRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if _, err := r.appointments.InsertOne(ctx, toAppointmentDoc(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *MongoRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, start, end string) (*Appointment, error) {
	res := r.appointments.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(StatusPending)},
		bson.M{"$set": bson.M{
			"date":       date,
			"start_time": start,
			"end_time":   end,
			"updated_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	a, err := decodeAppointment(res)
	switch {
	case err == nil:
		return a, nil
	case mongo.IsDuplicateKeyError(err):
		return nil, ErrDuplicateBooking
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, r.notPendingOrMissing(ctx, id)
	default:
		return nil, err
	}
}

func (r *MongoRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	res := r.appointments.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	a, err := decodeAppointment(res)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil, ErrDuplicateBooking
	}
	return a, err
}

func (r *MongoRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	res, err := r.appointments.DeleteOne(ctx, bson.M{"_id": id.String(), "status": string(StatusPending)})
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if res.DeletedCount == 0 {
		return r.notPendingOrMissing(ctx, id)
	}
	return nil
}

func (r *MongoRepository) notPendingOrMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetAppointmentByID(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

// Events

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	doc := eventDoc{
		EventType: ev.EventType,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
	if ev.AppointmentID != nil {
		id := ev.AppointmentID.String()
		doc.AppointmentID = &id
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
