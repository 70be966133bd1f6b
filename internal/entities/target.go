package entities

import "time"

// Payloads are the normalized records handed to the target creation API.
// A nil payload from a mapping function means "skip this row".

type CategoryPayload struct {
	Name        string
	Description string
	ParentID    int64 // 0 = top level
	Position    int
}

type UserPayload struct {
	Email          string
	Username       string
	Name           string
	Bio            string
	Location       string
	Website        string
	CreatedAt      time.Time
	SuspendedUntil *time.Time
	SuspendReason  string
	AvatarUploadID int64
}

type TopicPayload struct {
	CategoryID  int64
	AuthorID    int64
	Title       string
	Body        string
	Excerpt     string
	CreatedAt   time.Time
	Closed      bool
	PinnedUntil *time.Time
}

type PostPayload struct {
	TopicID   int64
	AuthorID  int64
	ReplyToID int64 // target post id, 0 = reply to the topic itself
	Body      string
	CreatedAt time.Time
}

// Created entities, as materialized by the target platform. The gorm tags
// describe the reference store's schema; an external client is free to
// populate only the IDs.

type Category struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"size:256"`
	Description string `gorm:"type:text"`
	ParentID    int64  `gorm:"index"`
	Position    int
	CreatedAt   time.Time
}

type User struct {
	ID             int64  `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;size:255"`
	Username       string `gorm:"uniqueIndex;size:100"`
	Name           string `gorm:"size:255"`
	Bio            string `gorm:"type:text"`
	Location       string `gorm:"size:255"`
	Website        string `gorm:"size:512"`
	SuspendedUntil *time.Time
	SuspendReason  string `gorm:"size:512"`
	AvatarUploadID int64
	CreatedAt      time.Time
}

type Topic struct {
	ID          int64  `gorm:"primaryKey"`
	CategoryID  int64  `gorm:"index"`
	AuthorID    int64  `gorm:"index"`
	Title       string `gorm:"size:512"`
	Body        string `gorm:"type:text"`
	Excerpt     string `gorm:"size:1024"`
	Closed      bool
	PinnedUntil *time.Time
	SolvedByID  int64
	CreatedAt   time.Time
}

type Post struct {
	ID        int64  `gorm:"primaryKey"`
	TopicID   int64  `gorm:"index"`
	AuthorID  int64  `gorm:"index"`
	ReplyToID int64
	Body      string `gorm:"type:text"`
	CreatedAt time.Time
}

type Upload struct {
	ID           int64  `gorm:"primaryKey"`
	UUID         string `gorm:"uniqueIndex;size:36"`
	AuthorID     int64  `gorm:"index"`
	OriginalName string `gorm:"size:512"`
	RelativePath string `gorm:"size:1024"`
	MimeType     string `gorm:"size:128"`
	SizeBytes    int64
	Checksum     string `gorm:"size:64"`
	CreatedAt    time.Time
}

// ShortRef is the inline reference spliced into rewritten post bodies.
func (u *Upload) ShortRef() string {
	return "upload://" + u.UUID
}
