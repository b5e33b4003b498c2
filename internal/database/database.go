package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New opens the database named by databaseURL: postgres for postgres:// or
// postgresql:// URLs, sqlite for everything else. TranslateError is enabled
// so unique violations surface as gorm.ErrDuplicatedKey on both drivers.
func New(databaseURL string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		dialector = postgres.Open(databaseURL)
	default:
		path := sqlitePath(databaseURL)
		if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("error creating database directory: %w", err)
			}
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

func sqlitePath(databaseURL string) string {
	if rest, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		// sqlite:///name.db names a relative file, sqlite:////data/name.db an absolute one
		return strings.TrimPrefix(rest, "/")
	}
	return databaseURL
}
