package infra

import (
	"path/filepath"
	"testing"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type probe struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:20"`
}

func TestInitDatabaseSQLite(t *testing.T) {
	logger.Set(zaptest.NewLogger(t))

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "incidentdesk.db"),
	}
	db, err := InitDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase(db) })

	require.NoError(t, AutoMigrate(db, &probe{}))
	require.NoError(t, db.Create(&probe{Name: "ok"}).Error)
	require.NoError(t, PingDatabase(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, CloseDatabase(db))
	assert.Error(t, PingDatabase(db))
	assert.Error(t, PingDatabase(nil))
	assert.NoError(t, CloseDatabase(nil))
}
