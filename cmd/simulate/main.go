package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ReadRatio    float64
	PayRatio     float64
	PatientLimit int
	// HotSlots is how many slots every worker fights over.
	HotSlots int
}

type slot struct {
	ProviderID uuid.UUID
	Date       string
	Time       string
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slot

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.IntN(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	slices.Sort(latencies)
	at := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return at(50), at(95), at(99)
}

type Metrics struct {
	Booking OperationMetrics
	Pay     OperationMetrics
	Today   OperationMetrics
	Slots   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	token, err := auth.NewManager(baseCfg.Auth).Issue(auth.Identity{UserID: uuid.New(), Role: auth.RoleSecretary}, cfg.Duration+time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
	}

	sim.pool, err = sim.loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d hot slots", len(sim.pool.Patients), len(sim.pool.Slots))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	var cfg SimConfig
	flag.StringVar(&cfg.APIBaseURL, "url", "http://localhost:8080", "API base URL")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&cfg.Workers, "workers", 20, "concurrent clients")
	flag.Float64Var(&cfg.BookingRatio, "book", 0.5, "share of booking requests")
	flag.Float64Var(&cfg.ReadRatio, "read", 0.4, "share of read requests")
	flag.Float64Var(&cfg.PayRatio, "pay", 0.1, "share of payment requests")
	flag.IntVar(&cfg.PatientLimit, "patients", 2000, "patients to book for")
	flag.IntVar(&cfg.HotSlots, "slots", 50, "slots every worker competes for")
	flag.Parse()

	if total := cfg.BookingRatio + cfg.ReadRatio + cfg.PayRatio; total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
		cfg.PayRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("-workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("-duration must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("-slots must be > 0")
	}
	return nil
}

// loadDataPool reads patients straight from Postgres and discovers open slots
// through the API, the same way a booking screen would.
func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients
		WHERE NOT booking_blocked
		LIMIT $1
	`, s.config.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seed tool first")
	}

	var providers []api.ProviderResponse
	if err := s.getJSON(ctx, "/api/v1/providers", &providers); err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	for _, p := range providers {
		var dates api.AvailableDatesResponse
		if err := s.getJSON(ctx, fmt.Sprintf("/api/v1/providers/%s/available-dates?horizon=14", p.ID), &dates); err != nil {
			return nil, fmt.Errorf("available dates: %w", err)
		}
		for _, d := range dates.Dates {
			var slots []api.TimeSlotResponse
			if err := s.getJSON(ctx, fmt.Sprintf("/api/v1/providers/%s/slots?date=%s", p.ID, d), &slots); err != nil {
				return nil, fmt.Errorf("slots: %w", err)
			}
			for _, ts := range slots {
				if !ts.IsAvailable {
					continue
				}
				dp.Slots = append(dp.Slots, slot{ProviderID: p.ID, Date: d, Time: ts.Time})
				if len(dp.Slots) >= s.config.HotSlots {
					return dp, nil
				}
			}
		}
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no open slots found")
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
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.PayRatio:
			s.doPay(ctx, rng)
		default:
			if rng.IntN(2) == 0 {
				s.doListToday(ctx)
			} else {
				s.doSlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.IntN(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.IntN(len(s.pool.Patients))]

	body, _ := json.Marshal(api.BookRequest{
		ProviderID: sl.ProviderID.String(),
		PatientID:  patientID.String(),
		Date:       sl.Date,
		Time:       sl.Time,
	})

	start := time.Now()
	status, raw, err := s.do(ctx, http.MethodPost, "/api/v1/appointments", body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		switch status {
		case http.StatusCreated:
			success = true
			var appt api.AppointmentResponse
			if json.Unmarshal(raw, &appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(appt.ID)
			}
		case http.StatusConflict:
			conflict = true
		}
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doPay(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	body, _ := json.Marshal(api.PayRequest{Method: []string{"cash", "card"}[rng.IntN(2)]})

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodPut, "/api/v1/appointments/"+apptID.String()+"/pay", body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Pay.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doListToday(ctx context.Context) {
	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/api/v1/appointments?tab=today&limit=50", nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Today.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.IntN(len(s.pool.Slots))]

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/providers/%s/slots?date=%s", sl.ProviderID, sl.Date), nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) error {
	status, raw, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, status, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Pay", &s.metrics.Pay)
	printOperationReport("List today", &s.metrics.Today)
	printOperationReport("Slots", &s.metrics.Slots)

	// Each hot slot can be won once, so successes above the slot count mean
	// a double booking got through.
	if won := atomic.LoadInt64(&s.metrics.Booking.Success); won > int64(len(s.pool.Slots)) {
		fmt.Printf("WARNING: %d bookings succeeded for %d slots\n", won, len(s.pool.Slots))
		os.Exit(1)
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
	p50, p95, p99 := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: p50=%s p95=%s p99=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}
