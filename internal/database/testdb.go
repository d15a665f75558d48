package database

import (
	"os"
	"testing"

	"github.com/justsurfingit/careerboost/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDSNEnv names the variable holding a disposable Postgres DSN for tests.
const TestDSNEnv = "CAREERBOOST_TEST_DATABASE_DSN"

// OpenForTest connects to the test database, migrates it and empties every
// table, children first. The test is skipped when TestDSNEnv is unset.
func OpenForTest(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", TestDSNEnv)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	all := models.All()
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(m).Error; err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}
