package model

// Message is one chat line received from a user, kept for fact extraction.
type Message struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;not null"`
	Content   string `gorm:"type:text;not null"`
	Timestamp int64  `gorm:"index;not null"`

	// Seq breaks ties within one Timestamp second: unix nanoseconds, strictly increasing per process.
	Seq int64 `gorm:"index;not null;default:0"`
}

// Fact is an objective statement about a user extracted from their messages.
type Fact struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Text        string `gorm:"type:text;not null"`
	ExtractedAt int64  `gorm:"not null"`
}
