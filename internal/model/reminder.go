package model

import "time"

// Reminder is a periodic (or one-shot) memory pushed back to its owner.
// Timestamps are unix seconds.
type Reminder struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          string `gorm:"index;not null"`
	Content         string `gorm:"type:text;not null"`
	IntervalSeconds int64  `gorm:"not null"`
	NextPush        int64  `gorm:"index;not null"`
	CreatedAt       int64  `gorm:"not null"`
}

// TableName keeps the table name used by earlier deployments.
func (Reminder) TableName() string {
	return "memories"
}

// Recurring reports whether the reminder is rescheduled after firing.
func (r Reminder) Recurring() bool {
	return r.IntervalSeconds > 0
}

// NextDue returns the next push time.
func (r Reminder) NextDue() time.Time {
	return time.Unix(r.NextPush, 0)
}

// Interval returns the repeat interval.
func (r Reminder) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}
