package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/bootstrap"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/logging"
)

// Manifest lists the seeded identities so the simulator can mint tokens for
// them.
type Manifest struct {
	PatientUserIDs []uuid.UUID            `json:"patient_user_ids"`
	Professionals  []ManifestProfessional `json:"professionals"`
}

type ManifestProfessional struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

var specialties = []string{
	"Psychology",
	"Psychiatry",
	"Nutrition",
	"Dermatology",
	"General Practice",
	"Cardiology",
	"Endocrinology",
	"Pediatrics",
	"Speech Therapy",
	"Physiotherapy",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	professionals := envInt("SEED_PROFESSIONALS", 50)
	patients := envInt("SEED_PATIENTS", 2000)
	manifestPath := envString("SEED_MANIFEST", "seed-manifest.json")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store open error", zap.Error(err))
	}
	defer store.Close()

	var m Manifest

	logger.Info("seeding professionals", zap.Int("count", professionals))
	for i := 0; i < professionals; i++ {
		p := &appointment.Professional{
			UserID:      uuid.New(),
			Name:        "Dr. " + gofakeit.Name(),
			HourlyPrice: decimal.NewFromFloat(gofakeit.Price(80, 400)).Round(2),
			Active:      gofakeit.Number(1, 10) > 1,
			Specialties: pickSpecialties(),
		}
		if err := store.Profiles.CreateProfessional(ctx, p); err != nil {
			logger.Fatal("seed professional", zap.Error(err))
		}
		m.Professionals = append(m.Professionals, ManifestProfessional{ID: p.ID, UserID: p.UserID})
	}

	logger.Info("seeding patients", zap.Int("count", patients))
	for i := 0; i < patients; i++ {
		email := gofakeit.Email()
		p := &appointment.Patient{UserID: uuid.New(), Name: gofakeit.Name(), Email: &email}
		if err := store.Profiles.CreatePatient(ctx, p); err != nil {
			logger.Fatal("seed patient", zap.Error(err))
		}
		m.PatientUserIDs = append(m.PatientUserIDs, p.UserID)

		if (i+1)%500 == 0 {
			logger.Info("patients seeded", zap.String("progress", fmt.Sprintf("%d/%d", i+1, patients)))
		}
	}

	if err := writeManifest(manifestPath, m); err != nil {
		logger.Fatal("write manifest", zap.Error(err))
	}
	logger.Info("seed complete", zap.String("manifest", manifestPath))
}

func pickSpecialties() []string {
	n := gofakeit.Number(1, 3)
	picked := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(picked) < n {
		s := specialties[gofakeit.Number(0, len(specialties)-1)]
		if seen[s] {
			continue
		}
		seen[s] = true
		picked = append(picked, s)
	}
	return picked
}

func writeManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
