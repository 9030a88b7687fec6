package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-service/internal/approval"
	"gate-service/internal/domain/anpr"
	"gate-service/internal/utils"
)

// GateRepository is the SQL backend for the owner registry, the approval
// store and the gate event log.
type GateRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGateRepository(db *gorm.DB) *GateRepository {
	return &GateRepository{db: db, now: time.Now}
}

type Owner struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Username  string
	Plate     string `gorm:"not null;uniqueIndex"`
	ChatID    int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Approval struct {
	Plate     string `gorm:"primaryKey"`
	Status    string `gorm:"not null"`
	UpdatedAt time.Time
}

type GateEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type      string    `gorm:"not null"`
	Plate     string    `gorm:"not null;index"`
	OwnerName *string
	ChatID    *int64
	TrackID   *string
	ImageRef  *string
	EventTime time.Time `gorm:"not null;index"`
	Payload   datatypes.JSON
	CreatedAt time.Time
}

func (r *GateRepository) Owners(ctx context.Context) ([]anpr.Owner, error) {
	var rows []Owner
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	owners := make([]anpr.Owner, 0, len(rows))
	for _, row := range rows {
		owners = append(owners, anpr.Owner{
			Name:     row.Name,
			Username: row.Username,
			Plate:    row.Plate,
			ChatID:   row.ChatID,
		})
	}
	return owners, nil
}

// Register inserts owner or replaces the owner of the same plate.
func (r *GateRepository) Register(ctx context.Context, owner anpr.Owner) error {
	now := r.now()
	row := Owner{
		Name:      owner.Name,
		Username:  owner.Username,
		Plate:     utils.NormalizePlate(owner.Plate),
		ChatID:    owner.ChatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plate"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "username", "chat_id", "updated_at"}),
	}).Create(&row).Error
}

func (r *GateRepository) MarkPending(ctx context.Context, plate string) error {
	row := Approval{
		Plate:     utils.NormalizePlate(plate),
		Status:    string(approval.StatusPending),
		UpdatedAt: r.now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plate"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error
}

func (r *GateRepository) Decide(ctx context.Context, plate string, status approval.Status) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Approval{}).
		Where("plate = ?", utils.NormalizePlate(plate)).
		Updates(map[string]interface{}{"status": string(status), "updated_at": r.now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Consume deletes a terminal decision in the same transaction that read it.
// The delete is conditional on the status read, so a decision that changed
// in between is left for the next poll.
func (r *GateRepository) Consume(ctx context.Context, plate string) (approval.Status, error) {
	key := utils.NormalizePlate(plate)
	var status approval.Status

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Approval
		err := tx.Where("plate = ?", key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		read := approval.Status(row.Status)
		if !read.IsTerminal() {
			status = read
			return nil
		}
		res := tx.Where("plate = ? AND status = ?", key, row.Status).Delete(&Approval{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			status = read
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to consume decision for %s: %w", key, err)
	}
	return status, nil
}

func (r *GateRepository) Remove(ctx context.Context, plate string) error {
	return r.db.WithContext(ctx).
		Where("plate = ?", utils.NormalizePlate(plate)).
		Delete(&Approval{}).Error
}

func (r *GateRepository) Pending(ctx context.Context) ([]string, error) {
	var plates []string
	err := r.db.WithContext(ctx).
		Model(&Approval{}).
		Where("status = ?", string(approval.StatusPending)).
		Order("plate ASC").
		Pluck("plate", &plates).Error
	return plates, err
}

func (r *GateRepository) RecordEvent(ctx context.Context, event anpr.GateEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	row := GateEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		Plate:     utils.NormalizePlate(event.Plate),
		EventTime: event.At,
		Payload:   datatypes.JSON(payload),
		CreatedAt: r.now(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if event.Owner.Name != "" {
		row.OwnerName = &event.Owner.Name
	}
	if event.Owner.ChatID != 0 {
		row.ChatID = &event.Owner.ChatID
	}
	if event.TrackID != "" {
		row.TrackID = &event.TrackID
	}
	if event.ImageRef != "" {
		row.ImageRef = &event.ImageRef
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *GateRepository) FindEvents(ctx context.Context, plate *string, eventType *string, from, to *time.Time, limit, offset int) ([]GateEvent, error) {
	query := r.db.WithContext(ctx).Model(&GateEvent{})

	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	if eventType != nil {
		query = query.Where("type = ?", *eventType)
	}
	if from != nil {
		query = query.Where("event_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("event_time <= ?", *to)
	}

	query = query.Order("event_time DESC")

	if limit > 0 {
		query = query.Limit(limit)
		if limit > 100 {
			query = query.Limit(100)
		}
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var events []GateEvent
	err := query.Find(&events).Error
	return events, err
}

// DeleteOldEvents removes events older than days and returns how many were
// deleted.
func (r *GateRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).Where("event_time < ?", cutoff).Delete(&GateEvent{})
	return res.RowsAffected, res.Error
}
