package appointment

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the booking queries rely on, including
// the partial unique index that stops one patient holding two active
// appointments with a doctor on the same day. Partial $in filters need
// MongoDB 6.0 or newer.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		r.users: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_email"),
			},
		},
		r.doctors: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_user"),
			},
			{
				Keys:    bson.D{{Key: "is_approved", Value: 1}, {Key: "specialization", Value: 1}},
				Options: options.Index().SetName("approved_specialization_idx"),
			},
		},
		r.patients: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_user"),
			},
		},
		r.appointments: {
			// capacity counts
			{
				Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("doctor_date_status_idx"),
			},
			{
				Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetName("patient_date_idx"),
			},
			{
				Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "patient_id", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("active_booking_unique").
					SetPartialFilterExpression(bson.M{"status": bson.M{"$in": statusStrings(ActiveStatuses)}}),
			},
		},
		r.events: {
			{
				Keys:    bson.D{{Key: "appointment_id", Value: 1}},
				Options: options.Index().SetName("appointment_idx"),
			},
		},
	}

	for coll, models := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}
