package migrator

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumport/internal/categories"
	"forumport/internal/entities"
	"forumport/internal/legacy"
	"forumport/internal/legacy/legacytest"
	"forumport/internal/resolver"
	"forumport/internal/statestore"
	"forumport/internal/target"
	"forumport/internal/transform"
)

type harness struct {
	source *sql.DB
	state  *statestore.Store
	store  *target.Store
	driver *Driver
}

func newHarness(t *testing.T, mapping *categories.MappingConfig, attachRoot string) *harness {
	t.Helper()
	dir := t.TempDir()

	source := legacytest.Open(t)

	state, err := statestore.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })

	store, err := target.OpenStore(filepath.Join(dir, "target.db"), filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	driver := New(Deps{
		Reader:          legacy.NewReader(source, 2),
		State:           state,
		Client:          store,
		Transformer:     transform.New(attachRoot, resolver.New(attachRoot), store),
		Mapping:         mapping,
		AttachmentsRoot: attachRoot,
	})
	return &harness{source: source, state: state, store: store, driver: driver}
}

func (h *harness) targetID(t *testing.T, kind statestore.Kind, legacyID int64) int64 {
	t.Helper()
	id, err := h.state.TargetID(kind, statestore.IntKey(legacyID))
	require.NoError(t, err)
	return id
}

func seedBase(t *testing.T, db *sql.DB) {
	created := time.Date(2014, 6, 1, 12, 0, 0, 0, time.UTC)

	legacytest.AddGroup(t, db, 1, "Lonely", 1)
	legacytest.AddGroup(t, db, 2, "Busy", 2)
	legacytest.AddForum(t, db, 10, 1, "Solo", 1)
	legacytest.AddForum(t, db, 20, 2, "Alpha", 1)
	legacytest.AddForum(t, db, 21, 2, "Beta", 2)

	legacytest.AddUser(t, db, 1, "alice@example.com", "alice", "Alice A", created)
	legacytest.AddProfile(t, db, 1, "bio", "hello bio")
	legacytest.AddUser(t, db, 2, "bob@example.com", "bob", "", created)
	legacytest.AddUser(t, db, 3, "carol@example.com", "carol", "Lurker", created)

	legacytest.AddThread(t, db, 100, 10, 1, "First", "<p>hello <b>world</b></p>", created)
	legacytest.AddThread(t, db, 101, 20, 1, "Second", "<p>locked one</p>", created)
	legacytest.LockThread(t, db, 101)
	legacytest.StickyThread(t, db, 101, time.Now().Add(24*time.Hour))

	legacytest.AddReply(t, db, 1000, 100, 2, 0, "<p>re</p>", created)
	legacytest.AddReply(t, db, 1001, 100, 1, 1000, "<p>re two</p>", created)
	legacytest.VerifyReply(t, db, 1001, created)
}

func TestRun_FullMigration(t *testing.T) {
	h := newHarness(t, nil, "")
	seedBase(t, h.source)

	stats, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	// carol never posted and stays behind.
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 2, stats.Topics)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 1, stats.Solved)
	assert.Equal(t, 0, stats.Skipped)

	// The single-forum group collapsed; the busy one kept its node.
	cats, err := h.store.Categories()
	require.NoError(t, err)
	names := make(map[string]entities.Category)
	for _, c := range cats {
		names[c.Name] = c
	}
	assert.NotContains(t, names, "Lonely")
	assert.Equal(t, int64(0), names["Solo"].ParentID)
	assert.Equal(t, names["Busy"].ID, names["Alpha"].ParentID)

	alice, err := h.store.UserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A", alice.Name)
	assert.Equal(t, "hello bio", alice.Bio)

	bob, err := h.store.UserByUsername("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.Name) // display name fallback

	first, err := h.store.TopicByID(h.targetID(t, statestore.KindTopic, 100))
	require.NoError(t, err)
	assert.Equal(t, names["Solo"].ID, first.CategoryID)
	assert.Equal(t, alice.ID, first.AuthorID)
	assert.Contains(t, first.Body, "hello **world**")
	assert.Equal(t, "hello world", first.Excerpt)
	assert.False(t, first.Closed)

	second, err := h.store.TopicByID(h.targetID(t, statestore.KindTopic, 101))
	require.NoError(t, err)
	assert.True(t, second.Closed)
	require.NotNil(t, second.PinnedUntil)

	posts, err := h.store.PostsForTopic(first.ID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(0), posts[0].ReplyToID)
	assert.Equal(t, posts[0].ID, posts[1].ReplyToID)
	assert.Equal(t, bob.ID, posts[0].AuthorID)

	// The verified reply became the accepted answer.
	assert.Equal(t, posts[1].ID, first.SolvedByID)

	for _, url := range []string{"f/10", "t/100", "p/1000", "u/alice"} {
		_, _, err := h.state.PermalinkTarget(url)
		assert.NoError(t, err, url)
	}
}

func TestRun_SecondRunCreatesNothing(t *testing.T) {
	h := newHarness(t, nil, "")
	seedBase(t, h.source)

	_, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	stats, err := h.driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Users)
	assert.Equal(t, 0, stats.Topics)
	assert.Equal(t, 0, stats.Posts)

	topics, err := h.store.Count(&entities.Topic{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), topics)
	users, err := h.store.Count(&entities.User{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), users)
}

func TestRun_ParentEdgeCasesAttachToTopic(t *testing.T) {
	h := newHarness(t, nil, "")
	seedBase(t, h.source)
	created := time.Date(2014, 7, 1, 0, 0, 0, 0, time.UTC)

	// Forward reference and a parent id that never existed.
	legacytest.AddReply(t, h.source, 1002, 100, 2, 1005, "<p>fwd</p>", created)
	legacytest.AddReply(t, h.source, 1003, 100, 2, 999, "<p>ghost</p>", created)

	_, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	topicID := h.targetID(t, statestore.KindTopic, 100)
	posts, err := h.store.PostsForTopic(topicID)
	require.NoError(t, err)
	require.Len(t, posts, 4)
	assert.Equal(t, int64(0), posts[2].ReplyToID)
	assert.Equal(t, int64(0), posts[3].ReplyToID)
}

func TestRun_ExplicitMappingIgnoresForums(t *testing.T) {
	mapping := &categories.MappingConfig{
		IgnoredForumIDs: []int64{10},
		Mapping: []categories.MappingEntry{
			{Category: []string{"Main"}, Forums: []categories.ForumBinding{{ID: 20}, {ID: 21}}},
		},
	}
	h := newHarness(t, mapping, "")
	seedBase(t, h.source)

	stats, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	// Thread 100 and its replies live in the ignored forum.
	assert.Equal(t, 1, stats.Topics)
	assert.Equal(t, 0, stats.Posts)

	cats, err := h.store.Categories()
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Main", cats[0].Name)

	_, err = h.state.TargetID(statestore.KindTopic, statestore.IntKey(100))
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestRun_ExpiredBanAndPastStickyDropped(t *testing.T) {
	h := newHarness(t, nil, "")
	seedBase(t, h.source)
	legacytest.BanUser(t, h.source, 2, time.Now().Add(-time.Hour), "old offence")
	legacytest.BanUser(t, h.source, 1, time.Now().Add(time.Hour), "spam")
	legacytest.StickyThread(t, h.source, 100, time.Now().Add(-time.Hour))

	_, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	bob, err := h.store.UserByUsername("bob")
	require.NoError(t, err)
	assert.Nil(t, bob.SuspendedUntil)
	assert.Empty(t, bob.SuspendReason)

	alice, err := h.store.UserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, alice.SuspendedUntil)
	assert.Equal(t, "spam", alice.SuspendReason)

	first, err := h.store.TopicByID(h.targetID(t, statestore.KindTopic, 100))
	require.NoError(t, err)
	assert.Nil(t, first.PinnedUntil)
}

func TestRun_DedicatedAttachmentUploaded(t *testing.T) {
	root := t.TempDir()
	// application_type_id=1, application_id=1, content_type_id=1 and
	// content id 100 rendered as 0000000100.
	dir := filepath.Join(root, "01", "01", "01", "00", "00", "00", "01", "00")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "diagram.png"), []byte("png"), 0o644))

	h := newHarness(t, nil, root)
	seedBase(t, h.source)
	legacytest.AddAttachment(t, h.source, legacy.ContentTypeThread, 100, "diagram.png", false)

	_, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	first, err := h.store.TopicByID(h.targetID(t, statestore.KindTopic, 100))
	require.NoError(t, err)
	assert.Contains(t, first.Body, "[diagram.png](upload://")

	ups, err := h.store.Uploads()
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "diagram.png", ups[0].OriginalName)
}

func TestRun_LocalAvatarUploaded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "avatars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "avatars", "alice.png"), []byte("a"), 0o644))

	h := newHarness(t, nil, root)
	seedBase(t, h.source)
	legacytest.AddProfile(t, h.source, 1, "avatar", "avatars/alice.png")

	_, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	alice, err := h.store.UserByUsername("alice")
	require.NoError(t, err)
	assert.NotZero(t, alice.AvatarUploadID)

	// A missing avatar file is logged but never blocks the user.
	bobRef := newHarness(t, nil, root)
	seedBase(t, bobRef.source)
	legacytest.AddProfile(t, bobRef.source, 2, "avatar", "avatars/nope.png")
	stats, err := bobRef.driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
}

func TestRun_OrphanedThreadSkipped(t *testing.T) {
	h := newHarness(t, nil, "")
	seedBase(t, h.source)
	created := time.Date(2014, 8, 1, 0, 0, 0, 0, time.UTC)

	// Author 99 has no user row; the thread cannot be attributed.
	legacytest.AddThread(t, h.source, 102, 10, 99, "Ghost", "<p>x</p>", created)

	stats, err := h.driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Topics)
	assert.Equal(t, 1, stats.Skipped)
	_, err = h.state.TargetID(statestore.KindTopic, statestore.IntKey(102))
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}
