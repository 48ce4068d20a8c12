package database

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, defaultMaxOpenConns); got != defaultMaxOpenConns {
		t.Fatalf("zero should fall back, got %d", got)
	}
	if got := orDefault(-1*time.Second, defaultSlowQuery); got != defaultSlowQuery {
		t.Fatalf("negative should fall back, got %v", got)
	}
	if got := orDefault(40, defaultMaxOpenConns); got != 40 {
		t.Fatalf("explicit value should win, got %d", got)
	}
}

func TestMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, model := range Models() {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}
}
