package migration_0

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Prediction struct {
	ObservationId string         `gorm:"primaryKey;size:255"`
	Observation   datatypes.JSON `gorm:"not null"`
	Label         bool           `gorm:"not null"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Prediction{}); err != nil {
		return fmt.Errorf("error creating predictions table: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&Prediction{}); err != nil {
		return fmt.Errorf("error dropping predictions table: %w", err)
	}

	return nil
}
