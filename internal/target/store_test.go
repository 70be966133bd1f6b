package target

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumport/internal/entities"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenStore(filepath.Join(dir, "target.db"), filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTopic_RunsHookWithMaterializedID(t *testing.T) {
	s := openStore(t)

	var hookID int64
	topic, err := s.CreateTopic(entities.TopicPayload{
		CategoryID: 1,
		AuthorID:   2,
		Title:      "Welcome",
		Body:       "hello",
		CreatedAt:  time.Date(2015, 3, 1, 10, 0, 0, 0, time.UTC),
	}, func(created *entities.Topic) error {
		hookID = created.ID
		return nil
	})
	require.NoError(t, err)
	assert.NotZero(t, topic.ID)
	assert.Equal(t, topic.ID, hookID)

	got, err := s.TopicByID(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", got.Title)
	assert.Equal(t, 2015, got.CreatedAt.Year())
}

func TestCreateUpload_CopiesAndDeduplicates(t *testing.T) {
	s := openStore(t)

	src := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o644))

	first, err := s.CreateUpload(src, "photo.png", 7)
	require.NoError(t, err)
	assert.Equal(t, "image/png", first.MimeType)
	assert.Equal(t, int64(len("png-bytes")), first.SizeBytes)
	assert.Equal(t, "upload://"+first.UUID, first.ShortRef())

	stored, err := os.ReadFile(filepath.Join(s.uploadsDir, first.RelativePath))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(stored))

	// Same content under a different name resolves to the same record.
	other := filepath.Join(t.TempDir(), "copy.png")
	require.NoError(t, os.WriteFile(other, []byte("png-bytes"), 0o644))
	second, err := s.CreateUpload(other, "copy.png", 8)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	ups, err := s.Uploads()
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

func TestCreateUpload_UnknownExtensionFallsBack(t *testing.T) {
	s := openStore(t)

	src := filepath.Join(t.TempDir(), "blob.xyzzy")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	up, err := s.CreateUpload(src, "blob.xyzzy", 1)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", up.MimeType)
}

func TestMarkSolved_FirstWriteWins(t *testing.T) {
	s := openStore(t)

	topic, err := s.CreateTopic(entities.TopicPayload{Title: "Q"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkSolved(topic.ID, 41))
	require.NoError(t, s.MarkSolved(topic.ID, 99))

	got, err := s.TopicByID(topic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(41), got.SolvedByID)
}

func TestPostsForTopic_OrderedByID(t *testing.T) {
	s := openStore(t)

	for _, body := range []string{"one", "two", "three"} {
		_, err := s.CreatePost(entities.PostPayload{TopicID: 5, Body: body}, nil)
		require.NoError(t, err)
	}
	_, err := s.CreatePost(entities.PostPayload{TopicID: 6, Body: "other"}, nil)
	require.NoError(t, err)

	posts, err := s.PostsForTopic(5)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "one", posts[0].Body)
	assert.Equal(t, "three", posts[2].Body)
}
