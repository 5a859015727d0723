package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var workdays = []appointment.Weekday{
	appointment.Monday,
	appointment.Tuesday,
	appointment.Wednesday,
	appointment.Thursday,
	appointment.Friday,
	appointment.Saturday,
}

func dataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Create an admin, approved doctors with weekly slots, and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			tokenTTL, _ := cmd.Flags().GetDuration("token-ttl")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			t, err := openTarget(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer t.close()

			gofakeit.Seed(time.Now().UnixNano())

			ctx := cmd.Context()
			s := &seeder{store: t.store, logger: logger}

			admin, err := s.user(ctx, appointment.RoleAdmin)
			if err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			firstDoctor, err := s.doctors(ctx, doctors)
			if err != nil {
				return fmt.Errorf("seed doctors: %w", err)
			}
			firstPatient, err := s.patients(ctx, patients)
			if err != nil {
				return fmt.Errorf("seed patients: %w", err)
			}

			// sample bearer tokens so the API can be exercised right away
			for _, u := range []*appointment.User{admin, firstDoctor, firstPatient} {
				if u == nil {
					continue
				}
				token, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, u.ID, u.Role, tokenTTL)
				if err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
				fmt.Printf("%-8s %s %s\n", u.Role, u.ID, token)
			}

			logger.Info().Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().Int("doctors", 20, "Number of approved doctors to create")
	cmd.Flags().Int("patients", 200, "Number of patients to create")
	cmd.Flags().Duration("token-ttl", 24*time.Hour, "Lifetime of the printed sample tokens")
	return cmd
}

type seeder struct {
	store  seedStore
	logger zerolog.Logger
}

func (s *seeder) user(ctx context.Context, role appointment.Role) (*appointment.User, error) {
	phone := gofakeit.Phone()
	u := appointment.User{
		ID:        uuid.New(),
		Name:      gofakeit.Name(),
		Email:     fmt.Sprintf("%s.%s", uuid.NewString()[:8], gofakeit.Email()),
		Phone:     &phone,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *seeder) doctors(ctx context.Context, count int) (*appointment.User, error) {
	s.logger.Info().Int("count", count).Msg("seeding doctors")

	var first *appointment.User
	for i := 0; i < count; i++ {
		u, err := s.user(ctx, appointment.RoleDoctor)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = u
		}

		slots, err := appointment.NormalizeWeeklySlots(randomWeek())
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		d := &appointment.Doctor{
			ID:              uuid.New(),
			UserID:          u.ID,
			Specialization:  specialties[gofakeit.Number(0, len(specialties)-1)],
			Experience:      gofakeit.Number(1, 35),
			ConsultationFee: float64(gofakeit.Number(20, 300)),
			ClinicAddress:   gofakeit.Street(),
			Schedule:        appointment.Schedule{WeeklySlots: slots},
			IsApproved:      true,
			Status:          appointment.DoctorApproved,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.CreateDoctor(ctx, d); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Msg("doctors seeded")
	return first, nil
}

// randomWeek picks two to five workdays with a morning or afternoon window.
func randomWeek() []appointment.WeeklySlot {
	days := append([]appointment.Weekday(nil), workdays...)
	gofakeit.ShuffleAnySlice(days)

	n := gofakeit.Number(2, 5)
	slots := make([]appointment.WeeklySlot, 0, n)
	for _, day := range days[:n] {
		start, end := "09:00", "13:00"
		if gofakeit.Bool() {
			start, end = "14:00", "18:00"
		}
		slots = append(slots, appointment.WeeklySlot{
			Day:               day,
			StartTime:         start,
			EndTime:           end,
			MaxPatientsPerDay: gofakeit.Number(2, 12),
		})
	}
	return slots
}

func (s *seeder) patients(ctx context.Context, count int) (*appointment.User, error) {
	s.logger.Info().Int("count", count).Msg("seeding patients")

	histories := []string{"asthma", "diabetes", "hypertension", "allergies", "migraine"}
	oldest := time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	youngest := time.Now().UTC().AddDate(-1, 0, 0)

	var first *appointment.User
	for i := 0; i < count; i++ {
		u, err := s.user(ctx, appointment.RolePatient)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = u
		}

		dob := appointment.CalendarDay(gofakeit.DateRange(oldest, youngest), time.UTC)
		var history []string
		if gofakeit.Number(0, 3) == 0 {
			history = []string{histories[gofakeit.Number(0, len(histories)-1)]}
		}

		now := time.Now().UTC()
		p := &appointment.Patient{
			ID:             uuid.New(),
			UserID:         u.ID,
			Gender:         gofakeit.Gender(),
			DateOfBirth:    &dob,
			Address:        gofakeit.Street(),
			MedicalHistory: history,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreatePatient(ctx, p); err != nil {
			return nil, err
		}

		if (i+1)%100 == 0 {
			s.logger.Info().Int("done", i+1).Int("count", count).Msg("patients seeded")
		}
	}

	s.logger.Info().Msg("patients seeded")
	return first, nil
}
