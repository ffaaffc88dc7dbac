package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Postgres error codes that mean a concurrent booking won the race.
const (
	pgExclusionViolation   = "23P01"
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, patient_id, professional_id, scheduled_at, status, price::text, video_room_url, created_at, updated_at`

const detailSelect = `
	SELECT a.id, a.patient_id, a.professional_id, a.scheduled_at, a.status, a.price::text,
	       a.video_room_url, a.created_at, a.updated_at,
	       p.user_id, p.name, pr.user_id, pr.name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN professionals pr ON pr.id = a.professional_id`

// Helpers

func parsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	var price string

	err := row.Scan(&p.ID, &p.UserID, &p.Name, &price, &p.Active, &p.Specialties, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}

	if p.HourlyPrice, err = parsePrice(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var price string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ScheduledAt,
		&a.Status,
		&price,
		&a.VideoRoomURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Price, err = parsePrice(price); err != nil {
		return nil, err
	}
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var price string

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.ProfessionalID,
		&d.ScheduledAt,
		&d.Status,
		&price,
		&d.VideoRoomURL,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Patient.UserID,
		&d.Patient.Name,
		&d.Professional.UserID,
		&d.Professional.Name,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if d.Price, err = parsePrice(price); err != nil {
		return nil, err
	}
	d.ScheduledAt = d.ScheduledAt.UTC()
	d.Patient.ID = d.PatientID
	d.Professional.ID = d.ProfessionalID
	return &d, nil
}

func scanRating(row pgx.Row) (*Rating, error) {
	var r Rating

	err := row.Scan(&r.ID, &r.AppointmentID, &r.Value, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRatingNotFound
		}
		return nil, err
	}

	return &r, nil
}

func statusStrings(set []Status) []string {
	return lo.Map(set, func(s Status, _ int) string { return string(s) })
}

// mapBookingError turns constraint and concurrency failures raised while
// inserting a booking into ErrSlotTaken.
func mapBookingError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation, pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			if pgErr.ConstraintName == "" {
				return ErrSlotTaken
			}
			return ErrSlotTaken.WithDetail(pgErr.ConstraintName)
		}
	}
	return err
}

func listActiveStarts(ctx context.Context, q querier, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := q.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE professional_id = $1
		  AND status <> 'CANCELED'
		  AND scheduled_at BETWEEN $2 AND $3
		ORDER BY scheduled_at
	`, professionalID, from, to)
	if err != nil {
		return nil, err
	}

	starts, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, err
	}
	return starts, nil
}

// Interface methods

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, email, created_at
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT pr.id, pr.user_id, pr.name, pr.hourly_price::text, pr.active,
		       COALESCE((
		           SELECT array_agg(s.name ORDER BY s.name)
		           FROM professional_specialties ps
		           JOIN specialties s ON s.id = ps.specialty_id
		           WHERE ps.professional_id = pr.id
		       ), '{}'::text[]),
		       pr.created_at
		FROM professionals pr
		WHERE pr.id = $1
	`, id)
	return scanProfessional(row)
}

func (r *PgRepository) ListActiveStarts(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return listActiveStarts(ctx, r.pool, professionalID, from, to)
}

// WithinBookingTx runs fn under READ COMMITTED. Correctness comes from the
// professional row lock taken by LockProfessional, with the exclusion
// constraint on appointments as a backstop.
func (r *PgRepository) WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgBookingTx{tx: tx})
	})
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientUserID != nil {
		add("p.user_id = $%d", *f.PatientUserID)
	}
	if f.ProfessionalUserID != nil {
		add("pr.user_id = $%d", *f.ProfessionalUserID)
	}
	if f.Status != nil {
		add("a.status = $%d", string(*f.Status))
	}

	sql := detailSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(" ORDER BY a.scheduled_at DESC, a.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
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

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns, id, string(to), statusStrings(from))

	return r.conditionalResult(ctx, id, row)
}

func (r *PgRepository) SetVideoRoomURL(ctx context.Context, id uuid.UUID, url string, allowed []Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET video_room_url = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns, id, url, statusStrings(allowed))

	return r.conditionalResult(ctx, id, row)
}

// conditionalResult tells "no such appointment" apart from "status no longer
// matched" when a conditional update touched no row.
func (r *PgRepository) conditionalResult(ctx context.Context, id uuid.UUID, row pgx.Row) (*Appointment, error) {
	a, err := scanAppointment(row)
	if !errors.Is(err, ErrAppointmentNotFound) {
		return a, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStatusChanged
	}
	return nil, ErrAppointmentNotFound
}

func (r *PgRepository) UpsertRating(ctx context.Context, appointmentID uuid.UUID, value int, comment *string) (*Rating, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO ratings (id, appointment_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET rating = EXCLUDED.rating,
		    comment = EXCLUDED.comment,
		    updated_at = now()
		RETURNING id, appointment_id, rating, comment, created_at, updated_at
	`, uuid.New(), appointmentID, value, comment)
	return scanRating(row)
}

func (r *PgRepository) GetRatingByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Rating, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, rating, comment, created_at, updated_at
		FROM ratings
		WHERE appointment_id = $1
	`, appointmentID)
	return scanRating(row)
}

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

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) LockProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, user_id, name, hourly_price::text, active, '{}'::text[], created_at
		FROM professionals
		WHERE id = $1
		FOR UPDATE
	`, id)
	p, err := scanProfessional(row)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return p, nil
}

func (t *pgBookingTx) ListActiveStarts(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return listActiveStarts(ctx, t.tx, professionalID, from, to)
}

func (t *pgBookingTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, scheduled_at, status, price, video_room_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
	`, a.ID, a.PatientID, a.ProfessionalID, a.ScheduledAt, string(a.Status), a.Price, a.VideoRoomURL, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapBookingError(err)
	}
	return nil
}
