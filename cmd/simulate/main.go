package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL string
	DoctorID   uuid.UUID
	Date       string
	Patients   int
	JWTSecret  string
	JWTIssuer  string
	Postgres   string
}

// BurstMetrics counts booking outcomes by HTTP status class.
type BurstMetrics struct {
	Total       int64
	Created     int64
	Conflict    int64
	Unavailable int64
	Error       int64
	Latencies   []time.Duration
	mu          sync.Mutex
}

func (m *BurstMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&m.Created, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddInt64(&m.Unavailable, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.Latencies = append(m.Latencies, latency)
	m.mu.Unlock()
}

func (m *BurstMetrics) Stats() (avg, p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.Latencies))
	copy(latencies, m.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	tokens  []string
	metrics BurstMetrics
	logger  zerolog.Logger
}

func main() {
	base, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(base.Env, base.LogLevel)

	cfg, err := loadConfig(base)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid simulator config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	tokens, err := patientTokens(ctx, pool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	logger.Info().Int("patients", len(tokens)).Str("doctor", cfg.DoctorID.String()).Str("date", cfg.Date).Msg("simulator ready")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
		logger: logger,
	}

	before, err := sim.remaining(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("read availability")
	}

	sim.Run(context.Background())

	after, err := sim.remaining(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("read availability after burst")
	}

	if overrun := sim.PrintReport(before, after); overrun {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) (SimConfig, error) {
	doctorID, err := uuid.Parse(os.Getenv("SIM_DOCTOR_ID"))
	if err != nil {
		return SimConfig{}, fmt.Errorf("SIM_DOCTOR_ID must be a doctor uuid: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL: strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		DoctorID:   doctorID,
		Date:       os.Getenv("SIM_DATE"),
		Patients:   getInt("SIM_PATIENTS", 50),
		JWTSecret:  base.JWTSecret,
		JWTIssuer:  base.JWTIssuer,
		Postgres:   base.PostgresDSN,
	}

	if cfg.Date == "" {
		return SimConfig{}, fmt.Errorf("SIM_DATE is required (YYYY-MM-DD)")
	}
	if cfg.Postgres == "" {
		return SimConfig{}, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Patients <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return cfg, nil
}

// patientTokens signs one bearer token per patient account.
func patientTokens(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT u.id FROM patients p
		JOIN users u ON u.id = p.user_id
		LIMIT $1
	`, cfg.Patients)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		token, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, id, appointment.RolePatient, time.Hour)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no patients loaded, run seed data first")
	}
	return tokens, nil
}

func (s *Simulator) remaining(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/doctors/%s/availability?date=%s", s.config.APIBaseURL, s.config.DoctorID, s.config.Date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("availability returned %d", resp.StatusCode)
	}

	var body api.AvailabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if len(body.Slots) == 0 {
		return 0, nil
	}
	return body.Slots[0].Remaining, nil
}

// Run releases every patient at once against the same doctor and day.
func (s *Simulator) Run(ctx context.Context) {
	start := make(chan struct{})

	var wg sync.WaitGroup
	for _, token := range s.tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			<-start
			s.book(ctx, token)
		}(token)
	}

	s.logger.Info().Int("workers", len(s.tokens)).Msg("starting booking burst")
	close(start)
	wg.Wait()
	s.logger.Info().Msg("burst complete")
}

func (s *Simulator) book(ctx context.Context, token string) {
	body, _ := json.Marshal(api.CreateAppointmentRequest{
		DoctorID: s.config.DoctorID.String(),
		Date:     s.config.Date,
		Reason:   "load test",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		s.metrics.Record(0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	began := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(began)
	if err != nil {
		s.logger.Debug().Err(err).Msg("booking request failed")
		s.metrics.Record(latency, 0)
		return
	}
	resp.Body.Close()

	s.metrics.Record(latency, resp.StatusCode)
}

// PrintReport writes the summary and reports whether more bookings
// succeeded than the day had room for.
func (s *Simulator) PrintReport(before, after int) bool {
	m := &s.metrics
	created := atomic.LoadInt64(&m.Created)
	avg, p50, p95, max := m.Stats()

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("BOOKING BURST REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Doctor: %s  Date: %s\n", s.config.DoctorID, s.config.Date)
	fmt.Printf("Requests: %d\n", atomic.LoadInt64(&m.Total))
	fmt.Printf("  Created (201):     %d\n", created)
	fmt.Printf("  Conflict (409):    %d\n", atomic.LoadInt64(&m.Conflict))
	fmt.Printf("  Unavailable (422): %d\n", atomic.LoadInt64(&m.Unavailable))
	fmt.Printf("  Other:             %d\n", atomic.LoadInt64(&m.Error))
	fmt.Printf("Remaining before/after: %d/%d\n", before, after)
	fmt.Printf("Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))

	overrun := created > int64(before)
	if overrun {
		fmt.Printf("OVERRUN: %d bookings succeeded but only %d places were free\n", created, before)
	} else {
		fmt.Println("capacity held")
	}
	return overrun
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
