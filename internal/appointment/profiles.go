package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileWriter creates patient and professional profiles. Registration is
// owned elsewhere; this is used by seeding and fixtures.
type ProfileWriter interface {
	CreatePatient(ctx context.Context, p *Patient) error
	CreateProfessional(ctx context.Context, p *Professional) error
}

func fillProfileDefaults(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	fillProfileDefaults(&p.ID, &p.CreatedAt)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, user_id, name, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.UserID, p.Name, p.Email, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateProfessional(ctx context.Context, p *Professional) error {
	fillProfileDefaults(&p.ID, &p.CreatedAt)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, user_id, name, hourly_price, active, created_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6)
		`, p.ID, p.UserID, p.Name, p.HourlyPrice, p.Active, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert professional: %w", err)
		}

		for _, name := range p.Specialties {
			_, err := tx.Exec(ctx, `
				WITH s AS (
					INSERT INTO specialties (name) VALUES ($1)
					ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
					RETURNING id
				)
				INSERT INTO professional_specialties (professional_id, specialty_id)
				SELECT $2, id FROM s
				ON CONFLICT DO NOTHING
			`, name, p.ID)
			if err != nil {
				return fmt.Errorf("link specialty %q: %w", name, err)
			}
		}
		return nil
	})
}

func (r *GormRepository) CreatePatient(ctx context.Context, p *Patient) error {
	fillProfileDefaults(&p.ID, &p.CreatedAt)
	row := patientRow{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *GormRepository) CreateProfessional(ctx context.Context, p *Professional) error {
	fillProfileDefaults(&p.ID, &p.CreatedAt)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		specialties := make([]specialtyRow, 0, len(p.Specialties))
		for _, name := range p.Specialties {
			s := specialtyRow{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
				return fmt.Errorf("insert specialty %q: %w", name, err)
			}
			if err := tx.Take(&s, "name = ?", name).Error; err != nil {
				return fmt.Errorf("load specialty %q: %w", name, err)
			}
			specialties = append(specialties, s)
		}

		row := professionalRow{
			ID:          p.ID,
			UserID:      p.UserID,
			Name:        p.Name,
			HourlyPrice: p.HourlyPrice,
			Active:      p.Active,
			Specialties: specialties,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.CreatedAt,
		}
		if err := tx.Omit("Specialties.*").Create(&row).Error; err != nil {
			return fmt.Errorf("insert professional: %w", err)
		}
		return nil
	})
}
