package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/auth"
	"github.com/hackgods/consultation-scheduling/internal/config"
)

type SimConfig struct {
	APIBaseURL   string
	ManifestPath string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	// HotProfessionals and HotSlots bound the booking target space so workers
	// collide on the same professional and overlapping starts.
	HotProfessionals int
	HotSlots         int
	JWTSecret        string
}

type manifest struct {
	PatientUserIDs []uuid.UUID `json:"patient_user_ids"`
	Professionals  []struct {
		ID     uuid.UUID `json:"id"`
		UserID uuid.UUID `json:"user_id"`
	} `json:"professionals"`
}

type booked struct {
	ID      uuid.UUID
	Patient uuid.UUID
}

type DataPool struct {
	Patients      []uuid.UUID
	Professionals []uuid.UUID
	Starts        []time.Time

	mu           sync.RWMutex
	appointments []booked
	tokens       map[uuid.UUID]string
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) token(patient uuid.UUID) string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.tokens[patient]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	if len(latencies) > 0 {
		p50Idx := len(latencies) * 50 / 100
		if p50Idx >= len(latencies) {
			p50Idx = len(latencies) - 1
		}
		p50 = latencies[p50Idx]

		p95Idx := len(latencies) * 95 / 100
		if p95Idx >= len(latencies) {
			p95Idx = len(latencies) - 1
		}
		p95 = latencies[p95Idx]
	}

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking     OperationMetrics
	Cancel      OperationMetrics
	ReadByID    OperationMetrics
	ListOwn     OperationMetrics
	CheckSlot   OperationMetrics
	overlapping int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f hot_professionals=%d hot_slots=%d",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio, cfg.HotProfessionals, cfg.HotSlots)

	dataPool, err := loadDataPool(cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d professionals, %d candidate starts",
		len(dataPool.Patients), len(dataPool.Professionals), len(dataPool.Starts))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:       getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		ManifestPath:     getEnv("SEED_MANIFEST", "seed-manifest.json"),
		Duration:         getDuration("SIM_DURATION", 30*time.Second),
		Workers:          getInt("SIM_WORKERS", 20),
		BookingRatio:     getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:      getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:        getFloat("SIM_READ_RATIO", 0.3),
		HotProfessionals: getInt("SIM_HOT_PROFESSIONALS", 3),
		HotSlots:         getInt("SIM_HOT_SLOTS", 12),
		JWTSecret:        baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotProfessionals <= 0 || cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_PROFESSIONALS and SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func loadDataPool(cfg SimConfig) (*DataPool, error) {
	raw, err := os.ReadFile(cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.PatientUserIDs) == 0 || len(m.Professionals) == 0 {
		return nil, fmt.Errorf("manifest %s has no patients or professionals", cfg.ManifestPath)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	dp := &DataPool{
		Patients: m.PatientUserIDs,
		tokens:   make(map[uuid.UUID]string, len(m.PatientUserIDs)),
	}
	for _, p := range m.PatientUserIDs {
		tok, err := verifier.Issue(auth.Caller{UserID: p, Role: auth.RolePatient}, cfg.Duration+time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		dp.tokens[p] = tok
	}

	for i, p := range m.Professionals {
		if i >= cfg.HotProfessionals {
			break
		}
		dp.Professionals = append(dp.Professionals, p.ID)
	}

	// Candidate starts are 10 minutes apart, so neighbours overlap a 30 minute
	// slot and contention is guaranteed.
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	for i := 0; i < cfg.HotSlots; i++ {
		dp.Starts = append(dp.Starts, base.Add(time.Duration(i*10)*time.Minute))
	}

	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")

	s.verifyNoOverlap()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListOwn(ctx, rng)
				case 2:
					s.doCheckSlot(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) request(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	pro := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	at := s.pool.Starts[rng.Intn(len(s.pool.Starts))]

	start := time.Now()
	resp, err := s.request(ctx, http.MethodPost, "/appointments", s.pool.token(patient), map[string]string{
		"professional_id": pro.String(),
		"scheduled_at":    at.Format(time.RFC3339),
	})
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(booked{ID: appt.ID, Patient: patient})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel", s.pool.token(b.Patient), nil)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodGet, "/appointments/"+b.ID.String(), s.pool.token(b.Patient), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.request(ctx, http.MethodGet, "/appointments?limit=20&offset=0", s.pool.token(patient), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListOwn.Record(latency, success, false)
}

func (s *Simulator) doCheckSlot(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	pro := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	at := s.pool.Starts[rng.Intn(len(s.pool.Starts))]

	start := time.Now()
	path := fmt.Sprintf("/professionals/%s/availability?at=%s", pro, at.Format(time.RFC3339))
	resp, err := s.request(ctx, http.MethodGet, path, s.pool.token(patient), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.CheckSlot.Record(latency, success, false)
}

// verifyNoOverlap reads back every created appointment and counts pairs of
// active appointments of one professional whose windows intersect. Any
// non-zero count is a double booking.
func (s *Simulator) verifyNoOverlap() {
	type row struct {
		Status       string    `json:"status"`
		ScheduledAt  time.Time `json:"scheduled_at"`
		EndsAt       time.Time `json:"ends_at"`
		Professional struct {
			ID uuid.UUID `json:"id"`
		} `json:"professional"`
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.pool.mu.RLock()
	all := append([]booked(nil), s.pool.appointments...)
	s.pool.mu.RUnlock()

	byPro := make(map[uuid.UUID][]row)
	for _, b := range all {
		resp, err := s.request(ctx, http.MethodGet, "/appointments/"+b.ID.String(), s.pool.token(b.Patient), nil)
		if err != nil {
			log.Printf("verify: read %s: %v", b.ID, err)
			continue
		}
		var r row
		err = json.NewDecoder(resp.Body).Decode(&r)
		resp.Body.Close()
		if err != nil || r.Status == "CANCELED" {
			continue
		}
		byPro[r.Professional.ID] = append(byPro[r.Professional.ID], r)
	}

	for _, rows := range byPro {
		sort.Slice(rows, func(i, j int) bool { return rows[i].ScheduledAt.Before(rows[j].ScheduledAt) })
		for i := 1; i < len(rows); i++ {
			if rows[i].ScheduledAt.Before(rows[i-1].EndsAt) {
				atomic.AddInt64(&s.metrics.overlapping, 1)
			}
		}
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List own", &s.metrics.ListOwn)
	printOperationReport("Check slot", &s.metrics.CheckSlot)

	overlaps := atomic.LoadInt64(&s.metrics.overlapping)
	if overlaps == 0 {
		fmt.Println("Double bookings: none")
	} else {
		fmt.Printf("Double bookings: %d overlapping pairs\n", overlaps)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
