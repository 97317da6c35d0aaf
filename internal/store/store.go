// Package store is the storage gateway for users and reminders.
//
// Every method is safe for concurrent use; callers share one bounded
// connection pool. Row mutations are single statements, so concurrent
// MarkDelivered calls on the same row are idempotent and a row being
// deleted is never returned half-formed by DueReminders.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/remindly/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists users and reminders.
type Store struct {
	db *gorm.DB
}

// New wraps an opened and migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts the user unless it already exists.
func (s *Store) CreateUser(ctx context.Context, telegramID int64, username string) error {
	user := &model.User{TelegramID: telegramID, Username: username}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "telegram_id"}}, DoNothing: true}).
		Create(user).Error
	if err != nil {
		return storageErr("create user", err)
	}
	return nil
}

// AddReminder stores a new pending reminder and returns its id.
func (s *Store) AddReminder(ctx context.Context, userID int64, description string, at time.Time) (uint, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return 0, fmt.Errorf("%w: description is empty", model.ErrValidation)
	}
	if at.IsZero() {
		return 0, fmt.Errorf("%w: reminder time is missing", model.ErrValidation)
	}

	reminder := &model.Reminder{
		UserID:       userID,
		Description:  description,
		ReminderTime: at.UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(reminder).Error; err != nil {
		return 0, storageErr("add reminder", err)
	}
	return reminder.ID, nil
}

// DueReminders returns every undelivered reminder scheduled at or before now,
// together with the recipient id of its owner. Order is unspecified.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]model.DueReminder, error) {
	var due []model.DueReminder
	err := s.db.WithContext(ctx).
		Table("reminders AS r").
		Select("r.id, r.user_id, r.description, r.reminder_time, u.telegram_id AS recipient_id").
		Joins("JOIN users u ON r.user_id = u.telegram_id").
		Where("r.notified = ? AND r.reminder_time <= ?", false, now.UTC()).
		Scan(&due).Error
	if err != nil {
		return nil, storageErr("due reminders", err)
	}
	return due, nil
}

// MarkDelivered flips the notified flag. Marking an already delivered or
// missing reminder is a no-op.
func (s *Store) MarkDelivered(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ?", id).
		UpdateColumn("notified", true).Error
	if err != nil {
		return storageErr("mark delivered", err)
	}
	return nil
}

// ListUserReminders returns all reminders of a user, earliest first.
func (s *Store) ListUserReminders(ctx context.Context, userID int64) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("reminder_time ASC, id ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, storageErr("list reminders", err)
	}
	return reminders, nil
}

// DeleteReminder removes the reminder only when it belongs to ownerID and
// reports whether a row was removed.
func (s *Store) DeleteReminder(ctx context.Context, id uint, ownerID int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&model.Reminder{})
	if res.Error != nil {
		return false, storageErr("delete reminder", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Ping checks that a pooled connection can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}
