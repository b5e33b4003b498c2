package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrDuplicateObservation = errors.New("observation id already exists")
	ErrObservationNotFound  = errors.New("observation id does not exist")
)

// Store owns every read and write of prediction records. Uniqueness of
// observation ids is enforced by the primary key at insert time, never by an
// existence check beforehand, so racing inserts cannot both succeed.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert creates the record for observationId, storing the request payload
// verbatim. Returns ErrDuplicateObservation if a record already exists.
func (s *Store) Insert(ctx context.Context, observationId string, payload []byte, label bool) error {
	record := Prediction{
		ObservationId: observationId,
		Observation:   datatypes.JSON(payload),
		Label:         label,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateObservation
		}
		return fmt.Errorf("error creating prediction record: %w", err)
	}
	return nil
}

// FindById looks up a record by exact observation id.
func (s *Store) FindById(ctx context.Context, observationId string) (Prediction, error) {
	var record Prediction
	if err := s.db.WithContext(ctx).First(&record, "observation_id = ?", observationId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Prediction{}, ErrObservationNotFound
		}
		return Prediction{}, fmt.Errorf("error getting prediction record: %w", err)
	}
	return record, nil
}

// UpdateLabel overwrites only the label of an existing record.
func (s *Store) UpdateLabel(ctx context.Context, observationId string, label bool) error {
	result := s.db.WithContext(ctx).Model(&Prediction{}).Where("observation_id = ?", observationId).Update("label", label)
	if result.Error != nil {
		return fmt.Errorf("error updating prediction record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrObservationNotFound
	}
	return nil
}

// List returns every stored record in storage order.
func (s *Store) List(ctx context.Context) ([]Prediction, error) {
	var records []Prediction
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing prediction records: %w", err)
	}
	return records, nil
}
