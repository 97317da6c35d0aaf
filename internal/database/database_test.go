package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/pathakanu/remindly/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func TestEnsureTimezoneUTC(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/remindly":                     "postgres://u:p@db:5432/remindly?TimeZone=UTC",
		"postgres://u:p@db:5432/remindly?TimeZone=Asia/Tokyo": "postgres://u:p@db:5432/remindly?TimeZone=Asia/Tokyo",
		"host=db user=u dbname=remindly":                      "host=db user=u dbname=remindly TimeZone=UTC",
		"host=db TimeZone=UTC":                                "host=db TimeZone=UTC",
	}
	for in, want := range cases {
		got, err := ensureTimezoneUTC(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestOpenBoundsPoolAndMigrates(t *testing.T) {
	dsn := fmt.Sprintf("file:open_%d?mode=memory&cache=shared&_fk=1", time.Now().UnixNano())
	db, err := Open(sqlite.Open(dsn), 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 4, sqlDB.Stats().MaxOpenConnections)

	assert.True(t, db.Migrator().HasTable(&model.User{}))
	assert.True(t, db.Migrator().HasTable(&model.Reminder{}))
	assert.True(t, db.Migrator().HasColumn(&model.Reminder{}, "notified"))
	assert.True(t, db.Migrator().HasColumn(&model.User{}, "telegram_id"))
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
