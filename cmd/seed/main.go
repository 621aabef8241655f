package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
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

func main() {
	providers := flag.Int("providers", 10, "number of providers to create")
	patients := flag.Int("patients", 500, "number of patients to create")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	zl, err := logger.New(config.LogConfig{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, _, err := db.ConnectAndMigrate(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	store := appointment.NewPgStore(pool)
	svc := appointment.NewService(store, redisclient.NopLocker{}, cfg, appointment.WithLogger(zl))
	tokens := auth.NewManager(cfg.Auth)
	secretary := auth.Identity{UserID: uuid.New(), Role: auth.RoleSecretary}

	providerIDs, err := seedProviders(ctx, store, *providers)
	if err != nil {
		zl.Fatal("seed providers", zap.Error(err))
	}
	zl.Info("providers seeded", zap.Int("count", len(providerIDs)))

	patientIDs, err := seedPatients(ctx, store, *patients)
	if err != nil {
		zl.Fatal("seed patients", zap.Error(err))
	}
	zl.Info("patients seeded", zap.Int("count", len(patientIDs)))

	// A quarter of the patients start with wallet credit.
	deposits := 0
	for i, id := range patientIDs {
		if i%4 != 0 {
			continue
		}
		amount := decimal.NewFromInt(int64(gofakeit.Number(2, 20) * 10))
		if _, err := svc.Deposit(ctx, secretary, id, amount, "opening balance"); err != nil {
			zl.Fatal("seed deposit", zap.Error(err))
		}
		deposits++
	}
	zl.Info("deposits seeded", zap.Int("count", deposits))

	if err := seedHolidays(ctx, store, cfg.Clinic.Location); err != nil {
		zl.Fatal("seed holidays", zap.Error(err))
	}

	fmt.Println("dev tokens:")
	printToken(tokens, "admin", auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}, *tokenTTL)
	printToken(tokens, "secretary", secretary, *tokenTTL)
	if len(providerIDs) > 0 {
		printToken(tokens, "doctor", auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor, ProviderID: &providerIDs[0]}, *tokenTTL)
	}
	if len(patientIDs) > 0 {
		printToken(tokens, "patient", auth.Identity{UserID: uuid.New(), Role: auth.RolePatient, PatientID: &patientIDs[0]}, *tokenTTL)
	}
}

func seedProviders(ctx context.Context, store *appointment.PgStore, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		p := &appointment.Provider{
			ID:           uuid.New(),
			Name:         "Dr. " + gofakeit.LastName(),
			Specialty:    &spec,
			SlotMinutes:  []int{15, 20, 30}[gofakeit.Number(0, 2)],
			DefaultPrice: decimal.NewFromInt(int64(gofakeit.Number(30, 120))),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for wd := time.Monday; wd <= time.Friday; wd++ {
			p.Hours = append(p.Hours, appointment.WorkingHours{
				Weekday: wd, Open: appointment.NewClock(9, 0), Close: appointment.NewClock(17, 0),
			})
		}
		// Saturday mornings for every other provider.
		if i%2 == 0 {
			p.Hours = append(p.Hours, appointment.WorkingHours{
				Weekday: time.Saturday, Open: appointment.NewClock(9, 0), Close: appointment.NewClock(13, 0),
			})
		}
		if err := store.SaveProvider(ctx, p); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func seedPatients(ctx context.Context, store *appointment.PgStore, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)
		err := store.InTx(ctx, func(tx appointment.Tx) error {
			now := time.Now().UTC()
			for i := offset; i < end; i++ {
				email := gofakeit.Email()
				phone := gofakeit.Phone()
				p := &appointment.Patient{
					ID:              uuid.New(),
					FullName:        gofakeit.Name(),
					Phone:           phone,
					NormalizedPhone: appointment.NormalizePhone(phone),
					Email:           &email,
					Balance:         decimal.Zero,
					CreatedAt:       now,
					UpdatedAt:       now,
				}
				if err := tx.InsertPatient(ctx, p); err != nil {
					return err
				}
				ids = append(ids, p.ID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func seedHolidays(ctx context.Context, store *appointment.PgStore, loc *time.Location) error {
	year := time.Now().In(loc).Year()
	holidays := []appointment.Holiday{
		{Date: appointment.NewDate(year, time.January, 1), Name: "New Year's Day", Recurring: true},
		{Date: appointment.NewDate(year, time.April, 23), Name: "National Sovereignty and Children's Day", Recurring: true},
		{Date: appointment.NewDate(year, time.May, 1), Name: "Labour Day", Recurring: true},
		{Date: appointment.NewDate(year, time.October, 29), Name: "Republic Day", Recurring: true},
	}
	return store.InTx(ctx, func(tx appointment.Tx) error {
		existing, err := tx.ListHolidays(ctx)
		if err != nil {
			return err
		}
		for _, h := range holidays {
			if seeded(existing, h) {
				continue
			}
			h.ID = uuid.New()
			h.CreatedAt = time.Now().UTC()
			if err := tx.InsertHoliday(ctx, &h); err != nil {
				return err
			}
		}
		return nil
	})
}

func seeded(existing []appointment.Holiday, h appointment.Holiday) bool {
	for _, e := range existing {
		if e.ProviderID == nil && e.Name == h.Name {
			return true
		}
	}
	return false
}

func printToken(m *auth.Manager, label string, id auth.Identity, ttl time.Duration) {
	tok, err := m.Issue(id, ttl)
	if err != nil {
		log.Fatalf("issue %s token: %v", label, err)
	}
	fmt.Printf("  %-9s %s\n", label, tok)
}
