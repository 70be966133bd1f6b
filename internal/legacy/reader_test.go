package legacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumport/internal/legacy/legacytest"
)

var t0 = time.Date(2018, 3, 14, 10, 0, 0, 0, time.UTC)

func TestActiveUsers_FiltersLurkers(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddUser(t, db, 1, "alice@example.com", "alice", "Alice", t0)
	legacytest.AddUser(t, db, 2, "bob@example.com", "bob", "Bob", t0)
	legacytest.AddUser(t, db, 3, "carol@example.com", "carol", "Carol", t0)
	legacytest.AddThread(t, db, 10, 1, 1, "Hello", "<p>hi</p>", t0)
	legacytest.AddReply(t, db, 20, 10, 3, 0, "<p>welcome</p>", t0)

	r := NewReader(db, 50)
	users, err := r.ActiveUsers(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].ID)
	assert.Equal(t, int64(3), users[1].ID)
}

func TestActiveUsers_MergesProfileAndBan(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddUser(t, db, 1, "alice@example.com", "alice", "Alice", t0)
	legacytest.AddThread(t, db, 10, 1, 1, "Hello", "x", t0)
	legacytest.AddProfile(t, db, 1, "bio", "I post a lot")
	legacytest.AddProfile(t, db, 1, "location", "Helsinki")
	legacytest.AddProfile(t, db, 1, "website", "https://alice.example")
	legacytest.AddProfile(t, db, 1, "avatar", "avatars/alice.png")
	until := t0.AddDate(10, 0, 0)
	legacytest.BanUser(t, db, 1, until, "spam")

	r := NewReader(db, 50)
	users, err := r.ActiveUsers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, users, 1)

	u := users[0]
	assert.Equal(t, "I post a lot", u.Bio)
	assert.Equal(t, "Helsinki", u.Location)
	assert.Equal(t, "https://alice.example", u.Website)
	assert.Equal(t, "avatars/alice.png", u.AvatarRef)
	require.NotNil(t, u.BannedUntil)
	assert.True(t, u.BannedUntil.Equal(until))
	assert.Equal(t, "spam", u.BanReason)
}

func TestWatermarkPagination_StrictlyMonotonic(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddUser(t, db, 1, "a@x", "a", "", t0)
	for i := int64(1); i <= 7; i++ {
		legacytest.AddThread(t, db, i, 1, 1, "t", "b", t0.Add(time.Duration(i)*time.Minute))
	}

	r := NewReader(db, 3)
	ctx := context.Background()

	var watermark int64
	var seen []int64
	for {
		batch, err := r.Topics(ctx, watermark, nil)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, topic := range batch {
			require.Greater(t, topic.ID, watermark)
			seen = append(seen, topic.ID)
		}
		assert.LessOrEqual(t, len(batch), 3)
		watermark = batch[len(batch)-1].ID
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, seen)
}

func TestTopics_IgnoredForumsExcluded(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddThread(t, db, 1, 5, 1, "keep", "b", t0)
	legacytest.AddThread(t, db, 2, 6, 1, "drop", "b", t0)
	legacytest.AddThread(t, db, 3, 5, 1, "keep too", "b", t0)

	r := NewReader(db, 50)
	topics, err := r.Topics(context.Background(), 0, []int64{6})
	require.NoError(t, err)

	require.Len(t, topics, 2)
	assert.Equal(t, int64(1), topics[0].ID)
	assert.Equal(t, int64(3), topics[1].ID)
}

func TestTopics_AttachmentAndSticky(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddThread(t, db, 1, 5, 1, "with file", "b", t0)
	legacytest.StickyThread(t, db, 1, t0.AddDate(5, 0, 0))
	legacytest.LockThread(t, db, 1)
	legacytest.AddAttachment(t, db, ContentTypeThread, 1, "diagram.png", false)
	// A reply attachment with the same content id must not leak onto the thread.
	legacytest.AddAttachment(t, db, ContentTypeReply, 1, "other.png", false)

	r := NewReader(db, 50)
	topics, err := r.Topics(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, topics, 1)

	topic := topics[0]
	assert.True(t, topic.Locked)
	require.NotNil(t, topic.StickyUntil)
	require.NotNil(t, topic.Attachment)
	assert.Equal(t, "diagram.png", topic.Attachment.FileName)
	assert.False(t, topic.Attachment.IsRemote)
}

func TestPosts_IgnoredForumsExcludeWholeThread(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddThread(t, db, 1, 5, 1, "keep", "b", t0)
	legacytest.AddThread(t, db, 2, 6, 1, "ignored", "b", t0)
	legacytest.AddReply(t, db, 10, 1, 1, 0, "on kept", t0)
	legacytest.AddReply(t, db, 11, 2, 1, 0, "on ignored", t0)

	r := NewReader(db, 50)
	posts, err := r.Posts(context.Background(), 0, []int64{6})
	require.NoError(t, err)

	require.Len(t, posts, 1)
	assert.Equal(t, int64(10), posts[0].ID)
}

func TestPosts_ParentAndVerified(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddThread(t, db, 1, 5, 1, "t", "b", t0)
	legacytest.AddReply(t, db, 10, 1, 1, 0, "top level", t0)
	legacytest.AddReply(t, db, 11, 1, 1, 10, "nested", t0)
	legacytest.VerifyReply(t, db, 11, t0.Add(time.Hour))

	r := NewReader(db, 50)
	posts, err := r.Posts(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, int64(0), posts[0].ParentID)
	assert.Nil(t, posts[0].VerifiedAt)
	assert.Equal(t, int64(10), posts[1].ParentID)
	assert.NotNil(t, posts[1].VerifiedAt)
}

func TestVerifiedAnswers_EarliestReplyPerThread(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddThread(t, db, 1, 5, 1, "t", "b", t0)
	legacytest.AddReply(t, db, 10, 1, 1, 0, "a", t0)
	legacytest.AddReply(t, db, 11, 1, 1, 0, "b", t0)
	legacytest.VerifyReply(t, db, 11, t0.Add(time.Hour))
	legacytest.VerifyReply(t, db, 10, t0.Add(2*time.Hour))

	r := NewReader(db, 50)
	answers, err := r.VerifiedAnswers(context.Background())
	require.NoError(t, err)

	require.Len(t, answers, 1)
	assert.Equal(t, int64(1), answers[0].ThreadID)
	assert.Equal(t, int64(10), answers[0].ReplyID)
}

func TestGroupsForumsAndCounts(t *testing.T) {
	db := legacytest.Open(t)
	legacytest.AddGroup(t, db, 1, "General", 2)
	legacytest.AddGroup(t, db, 2, "Support", 1)
	legacytest.AddForum(t, db, 10, 1, "Chat", 1)
	legacytest.AddForum(t, db, 11, 1, "News", 2)
	legacytest.AddForum(t, db, 20, 2, "Help", 1)

	r := NewReader(db, 50)
	ctx := context.Background()

	groups, err := r.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Support", groups[0].Name) // sort_order wins

	forums, err := r.Forums(ctx)
	require.NoError(t, err)
	require.Len(t, forums, 3)

	counts, err := r.ForumCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, counts)
}
