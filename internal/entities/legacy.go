package entities

import "time"

// Legacy records are read-only snapshots of the source platform. They are
// pulled once per batch and never written back.

type LegacyUser struct {
	ID          int64
	Email       string
	Username    string
	DisplayName string
	CreatedAt   time.Time

	// Profile fields, merged from the source's key/value profile table.
	Bio       string
	Location  string
	Website   string
	AvatarRef string

	// Ban fields. BannedUntil is nil for users in good standing.
	BannedUntil *time.Time
	BanReason   string
}

// LegacyGroup is a top-level container in the source's two-level
// group/forum hierarchy.
type LegacyGroup struct {
	ID          int64
	Name        string
	Description string
	SortOrder   int
}

type LegacyForum struct {
	ID          int64
	GroupID     int64
	Name        string
	Description string
	SortOrder   int
}

type LegacyTopic struct {
	ID          int64
	ForumID     int64
	UserID      int64
	Subject     string
	Body        string
	CreatedAt   time.Time
	Locked      bool
	StickyUntil *time.Time
	Attachment  *AttachmentDescriptor
}

// LegacyPost is a reply within a thread. ParentID is self-referential and
// only valid when it is numerically less than ID and belongs to the same
// thread; anything else means "reply to the topic".
type LegacyPost struct {
	ID         int64
	ThreadID   int64
	UserID     int64
	ParentID   int64
	Body       string
	CreatedAt  time.Time
	VerifiedAt *time.Time
	Attachment *AttachmentDescriptor
}

// AttachmentDescriptor identifies a file in the source's vendor file store.
// The on-disk location is computed deterministically from these fields.
type AttachmentDescriptor struct {
	ApplicationTypeID int
	ApplicationID     int
	ContentTypeID     int
	ContentID         int64
	FileName          string
	IsRemote          bool
}

// VerifiedAnswer pairs a thread with its earliest verified reply.
type VerifiedAnswer struct {
	ThreadID int64
	ReplyID  int64
}
