package testutil

import (
	"fmt"
	"strings"
	"testing"

	"membership-payments/internal/client"
	"membership-payments/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory sqlite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, id int64) *model.User {
	t.Helper()

	user := &model.User{
		ID:    id,
		Email: fmt.Sprintf("user%d@example.com", id),
		Name:  fmt.Sprintf("User %d", id),
		Tier:  model.TierFree,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
