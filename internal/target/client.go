// Package target is the boundary to the discussion platform being migrated
// into. Client is the creation API the driver talks to; Store is a
// reference implementation backed by a local database.
package target

import "forumport/internal/entities"

// Client creates target-side records. Every Create method accepts an
// optional post-create hook invoked with the materialized entity; side
// effects (permalinks, associations, identity mappings) belong in the hook,
// never in the code building the payload. A hook error fails the row.
type Client interface {
	CreateCategory(p entities.CategoryPayload, after func(*entities.Category) error) (*entities.Category, error)
	CreateUser(p entities.UserPayload, after func(*entities.User) error) (*entities.User, error)
	CreateTopic(p entities.TopicPayload, after func(*entities.Topic) error) (*entities.Topic, error)
	CreatePost(p entities.PostPayload, after func(*entities.Post) error) (*entities.Post, error)

	// CreateUpload ingests a file from disk and returns its upload record.
	// Re-uploading identical content returns the existing record.
	CreateUpload(filePath, originalName string, authorID int64) (*entities.Upload, error)

	// MarkSolved sets the topic's accepted answer. First write wins.
	MarkSolved(topicID, postID int64) error
}
