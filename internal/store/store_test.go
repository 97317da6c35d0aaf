package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/remindly/internal/database"
	"github.com/pathakanu/remindly/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := database.Open(sqlite.Open(dsn), 1)
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return New(db)
}

func TestCreateUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, 42, "alice"))
	require.NoError(t, s.CreateUser(ctx, 42, "renamed"))

	var users []model.User
	require.NoError(t, s.db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestAddReminderValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 1, ""))

	_, err := s.AddReminder(ctx, 1, "   ", time.Now())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = s.AddReminder(ctx, 1, "Pay rent", time.Time{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAddReminderUnknownUserIsStorageError(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddReminder(context.Background(), 777, "Pay rent", time.Now())
	assert.ErrorIs(t, err, model.ErrStorage)
}

func TestAddReminderAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 1, ""))

	first, err := s.AddReminder(ctx, 1, "one", time.Now())
	require.NoError(t, err)
	second, err := s.AddReminder(ctx, 1, "two", time.Now())
	require.NoError(t, err)

	assert.Greater(t, second, first)
}

func TestDueReminders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateUser(ctx, 1, "alice"))

	past, err := s.AddReminder(ctx, 1, "past", now.Add(-10*time.Second))
	require.NoError(t, err)
	exact, err := s.AddReminder(ctx, 1, "exact", now)
	require.NoError(t, err)
	_, err = s.AddReminder(ctx, 1, "future", now.Add(10*time.Second))
	require.NoError(t, err)
	delivered, err := s.AddReminder(ctx, 1, "old and delivered", now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.MarkDelivered(ctx, delivered))

	due, err := s.DueReminders(ctx, now)
	require.NoError(t, err)

	ids := make([]uint, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ID)
		assert.Equal(t, int64(1), r.RecipientID)
		assert.Equal(t, int64(1), r.UserID)
	}
	assert.ElementsMatch(t, []uint{past, exact}, ids)
}

func TestDueRemindersNormalisesZones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 1, ""))

	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2026, 10, 17, 21, 0, 0, 0, tokyo) // 12:00 UTC
	_, err := s.AddReminder(ctx, 1, "zoned", at)
	require.NoError(t, err)

	due, err := s.DueReminders(ctx, time.Date(2026, 10, 17, 11, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueReminders(ctx, time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 1, ""))
	id, err := s.AddReminder(ctx, 1, "Pay rent", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, id))
	once, err := s.ListUserReminders(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, id))
	twice, err := s.ListUserReminders(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.True(t, twice[0].Notified)

	// unknown ids are a no-op as well
	assert.NoError(t, s.MarkDelivered(ctx, 9999))
}

func TestMarkDeliveredConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 1, ""))
	id, err := s.AddReminder(ctx, 1, "Pay rent", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MarkDelivered(ctx, id)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	due, err := s.DueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestListUserRemindersOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateUser(ctx, 1, ""))
	require.NoError(t, s.CreateUser(ctx, 2, ""))

	_, err := s.AddReminder(ctx, 1, "third", base.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = s.AddReminder(ctx, 1, "first", base)
	require.NoError(t, err)
	_, err = s.AddReminder(ctx, 2, "someone else", base.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.AddReminder(ctx, 1, "second", base.Add(time.Hour))
	require.NoError(t, err)

	reminders, err := s.ListUserReminders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reminders, 3)
	assert.Equal(t, "first", reminders[0].Description)
	assert.Equal(t, "second", reminders[1].Description)
	assert.Equal(t, "third", reminders[2].Description)
	assert.True(t, reminders[0].ReminderTime.Equal(base))
	assert.False(t, reminders[0].Notified)
}

func TestDeleteReminderScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, 42, "owner"))
	require.NoError(t, s.CreateUser(ctx, 99, "other"))

	id, err := s.AddReminder(ctx, 99, "not yours", time.Now())
	require.NoError(t, err)

	removed, err := s.DeleteReminder(ctx, id, 42)
	require.NoError(t, err)
	assert.False(t, removed)

	reminders, err := s.ListUserReminders(ctx, 99)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)

	removed, err = s.DeleteReminder(ctx, id, 99)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteReminder(ctx, id, 99)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEndToEndDueLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateUser(ctx, 1, ""))

	id, err := s.AddReminder(ctx, 1, "Pay rent", now.Add(-time.Second))
	require.NoError(t, err)

	due, err := s.DueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	require.NoError(t, s.MarkDelivered(ctx, id))

	due, err = s.DueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestClosedDatabaseIsStorageError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, database.Close(s.db))

	_, err := s.DueReminders(context.Background(), time.Now())
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.ErrorIs(t, s.Ping(context.Background()), model.ErrStorage)
}
