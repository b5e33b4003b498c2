package database

import (
	"gorm.io/datatypes"
)

// Prediction is one scored observation. ObservationId is assigned by the
// caller, never generated here, and the primary key is what makes duplicate
// inserts fail atomically. Observation holds the request payload verbatim for
// audit and replay.
type Prediction struct {
	ObservationId string         `gorm:"primaryKey;size:255"`
	Observation   datatypes.JSON `gorm:"not null"`
	Label         bool           `gorm:"not null"`
}
