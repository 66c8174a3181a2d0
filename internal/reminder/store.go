// Package reminder persists per-user periodic reminders and tracks when each is next due.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pathakanu/dingbot/internal/model"
)

// ErrNotFound is returned by Get when no reminder has the requested id.
var ErrNotFound = errors.New("reminder not found")

// Store is a gorm-backed reminder table.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a Store using db, which must already be migrated.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert saves a reminder first due one interval from now and returns its id.
// An interval of zero or less makes a one-shot reminder that is due immediately.
func (s *Store) Insert(ctx context.Context, userID, content string, interval time.Duration) (uint, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("insert reminder: user id is empty")
	}
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("insert reminder: content is empty")
	}

	now := s.now().Unix()
	seconds := int64(interval / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	reminder := &model.Reminder{
		UserID:          userID,
		Content:         content,
		IntervalSeconds: seconds,
		NextPush:        now + seconds,
		CreatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	return reminder.ID, nil
}

// Delete removes the reminder. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.Reminder{}, id).Error; err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return nil
}

// Get loads a single reminder.
func (s *Store) Get(ctx context.Context, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.db.WithContext(ctx).First(&reminder, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return &reminder, nil
}

// List returns the user's reminders, most recently created first.
func (s *Store) List(ctx context.Context, userID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders for %s: %w", userID, err)
	}
	return reminders, nil
}

// Due returns every reminder whose next push time is at or before now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("next_push <= ?", now.Unix()).
		Order("next_push ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return reminders, nil
}

// Advance reschedules a fired reminder. Recurring reminders move forward by whole
// intervals until they are due strictly after now; one-shot reminders are deleted.
// A missing id is a no-op.
func (s *Store) Advance(ctx context.Context, id uint, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reminder model.Reminder
		err := tx.First(&reminder, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("advance reminder %d: %w", id, err)
		}

		if !reminder.Recurring() {
			if err := tx.Delete(&model.Reminder{}, id).Error; err != nil {
				return fmt.Errorf("advance one-shot reminder %d: %w", id, err)
			}
			return nil
		}

		next := NextPush(reminder.NextPush, reminder.IntervalSeconds, now.Unix())
		if next == reminder.NextPush {
			return nil
		}
		if err := tx.Model(&model.Reminder{}).
			Where("id = ?", id).
			Update("next_push", next).Error; err != nil {
			return fmt.Errorf("advance reminder %d: %w", id, err)
		}
		return nil
	})
}

// Users returns the distinct owners of stored reminders.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	if err := s.db.WithContext(ctx).Model(&model.Reminder{}).Distinct().Pluck("user_id", &users).Error; err != nil {
		return nil, fmt.Errorf("reminder users: %w", err)
	}
	return users, nil
}

// NextPush returns the smallest next + k*interval (k >= 0) strictly after now.
// interval must be positive.
func NextPush(next, interval, now int64) int64 {
	if next > now {
		return next
	}
	steps := (now-next)/interval + 1
	return next + steps*interval
}
