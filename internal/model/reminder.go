package model

import (
	"errors"
	"time"
)

// TimeLayout is the absolute timestamp format accepted from and shown to users.
const TimeLayout = "2006-01-02 15:04:05"

var (
	// ErrValidation marks bad user input; nothing was changed.
	ErrValidation = errors.New("validation error")
	// ErrStorage marks connectivity or query failures of the reminder store.
	ErrStorage = errors.New("storage error")
)

// User is a chat participant identified by the messaging channel's numeric id.
type User struct {
	TelegramID int64     `gorm:"primaryKey;autoIncrement:false"`
	Username   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Reminder represents a scheduled message owned by a user.
// ReminderTime is always stored in UTC and never changes after creation.
type Reminder struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       int64     `gorm:"index;not null"`
	User         *User     `gorm:"foreignKey:UserID;references:TelegramID;constraint:OnDelete:CASCADE"`
	Description  string    `gorm:"type:text;not null"`
	ReminderTime time.Time `gorm:"index;not null"`
	Notified     bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// DueReminder is a pending reminder joined with the recipient it must be delivered to.
type DueReminder struct {
	ID           uint
	UserID       int64
	Description  string
	ReminderTime time.Time
	RecipientID  int64
}
