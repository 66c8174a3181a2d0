// Package history keeps the chat log used for fact extraction and the facts extracted from it.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathakanu/dingbot/internal/model"
)

// Store reads and writes messages and facts.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu      sync.Mutex
	lastSeq int64
}

// NewStore returns a Store over a migrated database. now may be nil.
func NewStore(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Append records a message from userID.
func (s *Store) Append(ctx context.Context, userID, content string) error {
	now := s.now()
	msg := &model.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Timestamp: now.Unix(),
		Seq:       s.nextSeq(now),
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := now.UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Recent returns up to limit of the user's latest messages, oldest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("recent messages for %s: %w", userID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Users returns every user that has sent at least one message, sorted.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	if err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Distinct().
		Order("user_id").
		Pluck("user_id", &users).Error; err != nil {
		return nil, fmt.Errorf("message users: %w", err)
	}
	return users, nil
}

// SetFacts replaces the user's facts.
func (s *Store) SetFacts(ctx context.Context, userID string, facts []string) error {
	now := s.now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.Fact{}).Error; err != nil {
			return fmt.Errorf("clear facts for %s: %w", userID, err)
		}
		if len(facts) == 0 {
			return nil
		}
		rows := make([]model.Fact, 0, len(facts))
		for _, text := range facts {
			rows = append(rows, model.Fact{UserID: userID, Text: text, ExtractedAt: now})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save facts for %s: %w", userID, err)
		}
		return nil
	})
}

// Facts returns the user's current facts in extraction order.
func (s *Store) Facts(ctx context.Context, userID string) ([]string, error) {
	var facts []string
	if err := s.db.WithContext(ctx).
		Model(&model.Fact{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("text", &facts).Error; err != nil {
		return nil, fmt.Errorf("facts for %s: %w", userID, err)
	}
	return facts, nil
}
