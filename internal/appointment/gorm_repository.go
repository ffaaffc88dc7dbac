package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Table models used by GormRepository.

type patientRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Name      string    `gorm:"not null"`
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (patientRow) TableName() string { return "patients" }

type specialtyRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"not null;uniqueIndex"`
}

func (specialtyRow) TableName() string { return "specialties" }

type professionalRow struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Name        string          `gorm:"not null"`
	HourlyPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Active      bool            `gorm:"not null"`
	Specialties []specialtyRow  `gorm:"many2many:professional_specialties;joinForeignKey:ProfessionalID;joinReferences:SpecialtyID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (professionalRow) TableName() string { return "professionals" }

type appointmentRow struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PatientID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProfessionalID uuid.UUID       `gorm:"type:uuid;not null;index:idx_appointments_professional_scheduled,priority:1"`
	ScheduledAt    time.Time       `gorm:"not null;index:idx_appointments_professional_scheduled,priority:2"`
	Status         string          `gorm:"type:varchar(32);not null"`
	Price          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	VideoRoomURL   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (appointmentRow) TableName() string { return "appointments" }

type ratingRow struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppointmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Rating        int       `gorm:"not null"`
	Comment       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ratingRow) TableName() string { return "ratings" }

type eventLogRow struct {
	ID            int64      `gorm:"primaryKey;autoIncrement"`
	EventType     string     `gorm:"not null"`
	AppointmentID *uuid.UUID `gorm:"type:uuid;index"`
	Payload       []byte
	CreatedAt     time.Time
}

func (eventLogRow) TableName() string { return "event_logs" }

// detailRow is the flat shape of the appointment/patient/professional join.
type detailRow struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProfessionalID     uuid.UUID
	ScheduledAt        time.Time
	Status             string
	Price              decimal.Decimal
	VideoRoomURL       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PatientUserID      uuid.UUID
	PatientName        string
	ProfessionalUserID uuid.UUID
	ProfessionalName   string
}

func (r appointmentRow) toModel() *Appointment {
	return &Appointment{
		ID:             r.ID,
		PatientID:      r.PatientID,
		ProfessionalID: r.ProfessionalID,
		ScheduledAt:    r.ScheduledAt.UTC(),
		Status:         Status(r.Status),
		Price:          r.Price,
		VideoRoomURL:   r.VideoRoomURL,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r detailRow) toModel() AppointmentDetail {
	return AppointmentDetail{
		Appointment: Appointment{
			ID:             r.ID,
			PatientID:      r.PatientID,
			ProfessionalID: r.ProfessionalID,
			ScheduledAt:    r.ScheduledAt.UTC(),
			Status:         Status(r.Status),
			Price:          r.Price,
			VideoRoomURL:   r.VideoRoomURL,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		},
		Patient:      Party{ID: r.PatientID, UserID: r.PatientUserID, Name: r.PatientName},
		Professional: Party{ID: r.ProfessionalID, UserID: r.ProfessionalUserID, Name: r.ProfessionalName},
	}
}

func (r professionalRow) toModel() *Professional {
	p := &Professional{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		HourlyPrice: r.HourlyPrice,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
	for _, s := range r.Specialties {
		p.Specialties = append(p.Specialties, s.Name)
	}
	return p
}

func (r ratingRow) toModel() *Rating {
	return &Rating{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		Value:         r.Rating,
		Comment:       r.Comment,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// GormRepository is the Repository over GORM. It backs the embedded SQLite
// store and can also run on Postgres. On SQLite the pool is limited to one
// connection, so booking transactions are fully serialized.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(
		&patientRow{},
		&specialtyRow{},
		&professionalRow{},
		&appointmentRow{},
		&ratingRow{},
		&eventLogRow{},
	)
}

func (r *GormRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	var row patientRow
	if err := r.db.WithContext(ctx).Take(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &Patient{ID: row.ID, UserID: row.UserID, Name: row.Name, Email: row.Email, CreatedAt: row.CreatedAt}, nil
}

func (r *GormRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	var row professionalRow
	if err := r.db.WithContext(ctx).Preload("Specialties").Take(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func gormActiveStarts(ctx context.Context, db *gorm.DB, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var starts []time.Time
	err := db.WithContext(ctx).
		Model(&appointmentRow{}).
		Where("professional_id = ?", professionalID).
		Where("status <> ?", string(StatusCanceled)).
		Where("scheduled_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("scheduled_at ASC").
		Pluck("scheduled_at", &starts).Error
	if err != nil {
		return nil, err
	}
	return starts, nil
}

func (r *GormRepository) ListActiveStarts(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return gormActiveStarts(ctx, r.db, professionalID, from, to)
}

func (r *GormRepository) WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormBookingTx{db: tx})
	})
}

func (r *GormRepository) detailQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("appointments AS a").
		Select(`a.id, a.patient_id, a.professional_id, a.scheduled_at, a.status, a.price,
			a.video_room_url, a.created_at, a.updated_at,
			p.user_id AS patient_user_id, p.name AS patient_name,
			pr.user_id AS professional_user_id, pr.name AS professional_name`).
		Joins("JOIN patients p ON p.id = a.patient_id").
		Joins("JOIN professionals pr ON pr.id = a.professional_id")
}

func (r *GormRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	var rows []detailRow
	if err := r.detailQuery(ctx).Where("a.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrAppointmentNotFound
	}
	d := rows[0].toModel()
	return &d, nil
}

func (r *GormRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	q := r.detailQuery(ctx)
	if f.PatientUserID != nil {
		q = q.Where("p.user_id = ?", *f.PatientUserID)
	}
	if f.ProfessionalUserID != nil {
		q = q.Where("pr.user_id = ?", *f.ProfessionalUserID)
	}
	if f.Status != nil {
		q = q.Where("a.status = ?", string(*f.Status))
	}

	var rows []detailRow
	if err := q.Order("a.scheduled_at DESC, a.id").Limit(f.Limit).Offset(f.Offset).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]AppointmentDetail, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *GormRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	return r.conditionalUpdate(ctx, id, from, map[string]any{"status": string(to)})
}

func (r *GormRepository) SetVideoRoomURL(ctx context.Context, id uuid.UUID, url string, allowed []Status) (*Appointment, error) {
	return r.conditionalUpdate(ctx, id, allowed, map[string]any{"video_room_url": url})
}

func (r *GormRepository) conditionalUpdate(ctx context.Context, id uuid.UUID, allowed []Status, set map[string]any) (*Appointment, error) {
	set["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&appointmentRow{}).
		Where("id = ? AND status IN ?", id, statusStrings(allowed)).
		Updates(set)
	if res.Error != nil {
		return nil, res.Error
	}

	var row appointmentRow
	if err := r.db.WithContext(ctx).Take(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrStatusChanged
	}
	return row.toModel(), nil
}

func (r *GormRepository) UpsertRating(ctx context.Context, appointmentID uuid.UUID, value int, comment *string) (*Rating, error) {
	now := time.Now().UTC()
	row := ratingRow{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Rating:        value,
		Comment:       comment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appointment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}

	return r.GetRatingByAppointment(ctx, appointmentID)
}

func (r *GormRepository) GetRatingByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Rating, error) {
	var row ratingRow
	if err := r.db.WithContext(ctx).Take(&row, "appointment_id = ?", appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRatingNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *GormRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	row := eventLogRow{
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		Payload:       ev.Payload,
		CreatedAt:     ev.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormBookingTx struct {
	db *gorm.DB
}

func (t *gormBookingTx) LockProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	var row professionalRow
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfessionalNotFound
		}
		return nil, mapBookingError(err)
	}
	return row.toModel(), nil
}

func (t *gormBookingTx) ListActiveStarts(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return gormActiveStarts(ctx, t.db, professionalID, from, to)
}

func (t *gormBookingTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	row := appointmentRow{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ProfessionalID: a.ProfessionalID,
		ScheduledAt:    a.ScheduledAt.UTC(),
		Status:         string(a.Status),
		Price:          a.Price,
		VideoRoomURL:   a.VideoRoomURL,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlotTaken
		}
		return mapBookingError(err)
	}
	return nil
}
