// Package migrator orchestrates the one-shot migration: permalink
// normalizations, then categories, users, topics, posts and finally the
// solved-answer backfill. Every phase is resumable; identity mappings in the
// state store make re-running any prefix of the pipeline a no-op.
package migrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"forumport/internal/categories"
	"forumport/internal/entities"
	"forumport/internal/legacy"
	"forumport/internal/resolver"
	"forumport/internal/statestore"
	"forumport/internal/target"
	"forumport/internal/transform"
)

// Old-site URL shapes folded into the canonical permalink table, as
// "pattern|replacement" pairs.
var permalinkNormalizations = []string{
	`/forum/(\d+)[^\s]*|f/\1`,
	`/thread/(\d+)[^\s]*|t/\1`,
	`/post/(\d+)[^\s]*|p/\1`,
	`/user/(\d+)[^\s]*|u/\1`,
}

const excerptLength = 200

// Deps wires the driver. HTTPClient is only used to fetch remote avatars
// and defaults to http.DefaultClient.
type Deps struct {
	Reader          *legacy.Reader
	State           *statestore.Store
	Client          target.Client
	Transformer     *transform.Transformer
	Mapping         *categories.MappingConfig // nil = infer categories
	AttachmentsRoot string
	HTTPClient      *http.Client
}

type Driver struct {
	reader          *legacy.Reader
	state           *statestore.Store
	client          target.Client
	transformer     *transform.Transformer
	mapping         *categories.MappingConfig
	attachmentsRoot string
	httpClient      *http.Client
}

// Stats counts what one run actually created. Rows satisfied by earlier
// runs appear in none of the buckets.
type Stats struct {
	Users   int
	Topics  int
	Posts   int
	Solved  int
	Skipped int
}

func New(d Deps) *Driver {
	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Driver{
		reader:          d.Reader,
		state:           d.State,
		client:          d.Client,
		transformer:     d.Transformer,
		mapping:         d.Mapping,
		attachmentsRoot: d.AttachmentsRoot,
		httpClient:      httpClient,
	}
}

// Run executes all phases in order. Phase order is load-bearing: each phase
// only looks up mappings produced by the phases before it.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := d.registerNormalizations(); err != nil {
		return stats, err
	}
	if err := d.buildCategories(ctx); err != nil {
		return stats, fmt.Errorf("category phase: %w", err)
	}
	if err := d.importUsers(ctx, &stats); err != nil {
		return stats, fmt.Errorf("user phase: %w", err)
	}
	if err := d.importTopics(ctx, &stats); err != nil {
		return stats, fmt.Errorf("topic phase: %w", err)
	}
	if err := d.importPosts(ctx, &stats); err != nil {
		return stats, fmt.Errorf("post phase: %w", err)
	}
	if err := d.backfillSolved(ctx, &stats); err != nil {
		return stats, fmt.Errorf("solved phase: %w", err)
	}

	log.Printf("Migration finished: %d users, %d topics, %d posts, %d solved, %d skipped",
		stats.Users, stats.Topics, stats.Posts, stats.Solved, stats.Skipped)
	return stats, nil
}

func (d *Driver) registerNormalizations() error {
	for _, pattern := range permalinkNormalizations {
		if err := d.state.RegisterNormalization(pattern); err != nil {
			return fmt.Errorf("failed to register normalization %q: %w", pattern, err)
		}
	}
	return nil
}

func (d *Driver) buildCategories(ctx context.Context) error {
	builder := categories.NewResolver(d.state, d.client)

	if d.mapping != nil {
		return builder.BuildExplicit(d.mapping)
	}

	groups, err := d.reader.Groups(ctx)
	if err != nil {
		return err
	}
	forums, err := d.reader.Forums(ctx)
	if err != nil {
		return err
	}
	counts, err := d.reader.ForumCounts(ctx)
	if err != nil {
		return err
	}
	return builder.BuildInferred(groups, forums, counts)
}

func (d *Driver) importUsers(ctx context.Context, stats *Stats) error {
	var watermark int64
	for {
		users, err := d.reader.ActiveUsers(ctx, watermark)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return nil
		}
		watermark = users[len(users)-1].ID

		keys := make([]string, len(users))
		for i, u := range users {
			keys[i] = statestore.IntKey(u.ID)
		}
		done, err := d.state.AllExist(statestore.KindUser, keys)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		for _, u := range users {
			exists, err := d.state.Exists(statestore.KindUser, statestore.IntKey(u.ID))
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := d.importUser(u); err != nil {
				log.Printf("Skipping user %d (%s): %v", u.ID, u.Username, err)
				stats.Skipped++
				continue
			}
			stats.Users++
		}
	}
}

func (d *Driver) importUser(u entities.LegacyUser) error {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}

	payload := entities.UserPayload{
		Email:          u.Email,
		Username:       u.Username,
		Name:           name,
		Bio:            u.Bio,
		Location:       u.Location,
		Website:        u.Website,
		CreatedAt:      u.CreatedAt,
		AvatarUploadID: d.avatarUpload(u),
	}
	// Expired bans are history, not state; only active ones carry over.
	if u.BannedUntil != nil && u.BannedUntil.After(time.Now()) {
		payload.SuspendedUntil = u.BannedUntil
		payload.SuspendReason = u.BanReason
	}

	_, err := d.client.CreateUser(payload, func(created *entities.User) error {
		key := statestore.IntKey(u.ID)
		if err := d.state.Record(statestore.KindUser, key, created.ID); err != nil {
			return err
		}
		return d.state.RegisterPermalink("u/"+u.Username, statestore.KindUser, created.ID)
	})
	return err
}

// avatarUpload resolves the user's avatar reference to an upload id, or 0.
// Avatars are decorative: no failure here ever fails the user row.
func (d *Driver) avatarUpload(u entities.LegacyUser) int64 {
	if u.AvatarRef == "" {
		return 0
	}
	if strings.HasPrefix(u.AvatarRef, "http://") || strings.HasPrefix(u.AvatarRef, "https://") {
		return d.remoteAvatar(u)
	}
	if d.attachmentsRoot == "" {
		return 0
	}

	path := filepath.Join(d.attachmentsRoot, filepath.FromSlash(u.AvatarRef))
	if _, err := os.Stat(path); err != nil {
		log.Printf("Avatar file missing for user %d: %s", u.ID, path)
		return 0
	}
	up, err := d.client.CreateUpload(path, resolver.CleanFileName(filepath.Base(path)), 0)
	if err != nil {
		log.Printf("Failed to upload avatar for user %d: %v", u.ID, err)
		return 0
	}
	return up.ID
}

// remoteAvatar fetches an http(s) avatar. Most of these URLs have been dead
// for years, so failures are swallowed without a diagnostic.
func (d *Driver) remoteAvatar(u entities.LegacyUser) int64 {
	resp, err := d.httpClient.Get(u.AvatarRef)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}

	tmp, err := os.CreateTemp("", "avatar-*")
	if err != nil {
		return 0
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return 0
	}
	if err := tmp.Close(); err != nil {
		return 0
	}

	up, err := d.client.CreateUpload(tmp.Name(), filepath.Base(u.AvatarRef), 0)
	if err != nil {
		return 0
	}
	return up.ID
}

func (d *Driver) importTopics(ctx context.Context, stats *Stats) error {
	ignored := d.mapping.Ignored()

	var watermark int64
	for {
		topics, err := d.reader.Topics(ctx, watermark, ignored)
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			return nil
		}
		watermark = topics[len(topics)-1].ID

		keys := make([]string, len(topics))
		for i, t := range topics {
			keys[i] = statestore.IntKey(t.ID)
		}
		done, err := d.state.AllExist(statestore.KindTopic, keys)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		for _, t := range topics {
			exists, err := d.state.Exists(statestore.KindTopic, statestore.IntKey(t.ID))
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := d.importTopic(t); err != nil {
				log.Printf("Skipping thread %d: %v", t.ID, err)
				stats.Skipped++
				continue
			}
			stats.Topics++
		}
	}
}

func (d *Driver) importTopic(t entities.LegacyTopic) error {
	categoryID, err := d.state.TargetID(statestore.KindForum, statestore.IntKey(t.ForumID))
	if err != nil {
		return fmt.Errorf("forum %d has no category: %w", t.ForumID, err)
	}
	authorID, err := d.state.TargetID(statestore.KindUser, statestore.IntKey(t.UserID))
	if err != nil {
		return fmt.Errorf("author %d not imported: %w", t.UserID, err)
	}

	body, err := d.transformer.Rewrite(t.Body, authorID, t.Attachment)
	if err != nil {
		return err
	}

	payload := entities.TopicPayload{
		CategoryID:  categoryID,
		AuthorID:    authorID,
		Title:       t.Subject,
		Body:        body,
		Excerpt:     excerpt(t.Body),
		CreatedAt:   t.CreatedAt,
		Closed:      t.Locked,
		PinnedUntil: pinnedUntil(t.StickyUntil, time.Now()),
	}
	_, err = d.client.CreateTopic(payload, func(created *entities.Topic) error {
		key := statestore.IntKey(t.ID)
		if err := d.state.Record(statestore.KindTopic, key, created.ID); err != nil {
			return err
		}
		return d.state.RegisterPermalink(fmt.Sprintf("t/%d", t.ID), statestore.KindTopic, created.ID)
	})
	return err
}

func (d *Driver) importPosts(ctx context.Context, stats *Stats) error {
	ignored := d.mapping.Ignored()

	// Legacy thread of each reply seen this run, for parent validation.
	threadOf := make(map[int64]int64)

	var watermark int64
	for {
		posts, err := d.reader.Posts(ctx, watermark, ignored)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}
		watermark = posts[len(posts)-1].ID

		keys := make([]string, len(posts))
		for i, p := range posts {
			keys[i] = statestore.IntKey(p.ID)
		}
		done, err := d.state.AllExist(statestore.KindPost, keys)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		for _, p := range posts {
			threadOf[p.ID] = p.ThreadID

			exists, err := d.state.Exists(statestore.KindPost, statestore.IntKey(p.ID))
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := d.importPost(p, threadOf); err != nil {
				log.Printf("Skipping reply %d: %v", p.ID, err)
				stats.Skipped++
				continue
			}
			stats.Posts++
		}
	}
}

func (d *Driver) importPost(p entities.LegacyPost, threadOf map[int64]int64) error {
	topicID, err := d.state.TargetID(statestore.KindTopic, statestore.IntKey(p.ThreadID))
	if err != nil {
		return fmt.Errorf("thread %d not imported: %w", p.ThreadID, err)
	}
	authorID, err := d.state.TargetID(statestore.KindUser, statestore.IntKey(p.UserID))
	if err != nil {
		return fmt.Errorf("author %d not imported: %w", p.UserID, err)
	}

	body, err := d.transformer.Rewrite(p.Body, authorID, p.Attachment)
	if err != nil {
		return err
	}

	payload := entities.PostPayload{
		TopicID:   topicID,
		AuthorID:  authorID,
		ReplyToID: d.resolveParent(p, threadOf),
		Body:      body,
		CreatedAt: p.CreatedAt,
	}
	_, err = d.client.CreatePost(payload, func(created *entities.Post) error {
		key := statestore.IntKey(p.ID)
		if err := d.state.Record(statestore.KindPost, key, created.ID); err != nil {
			return err
		}
		return d.state.RegisterPermalink(fmt.Sprintf("p/%d", p.ID), statestore.KindPost, created.ID)
	})
	return err
}

// resolveParent maps the reply's self-referential parent id to a target post
// id. Forward references, cross-thread parents and parents that never made
// it across all degrade to a direct reply to the topic.
func (d *Driver) resolveParent(p entities.LegacyPost, threadOf map[int64]int64) int64 {
	if p.ParentID == 0 {
		return 0
	}
	if p.ParentID >= p.ID {
		log.Printf("Reply %d has forward parent reference %d, attaching to topic", p.ID, p.ParentID)
		return 0
	}
	if tid, seen := threadOf[p.ParentID]; seen && tid != p.ThreadID {
		log.Printf("Reply %d has cross-thread parent %d, attaching to topic", p.ID, p.ParentID)
		return 0
	}

	parentID, err := d.state.TargetID(statestore.KindPost, statestore.IntKey(p.ParentID))
	if err != nil {
		log.Printf("Reply %d has unresolved parent %d, attaching to topic", p.ID, p.ParentID)
		return 0
	}
	return parentID
}

func (d *Driver) backfillSolved(ctx context.Context, stats *Stats) error {
	answers, err := d.reader.VerifiedAnswers(ctx)
	if err != nil {
		return err
	}

	for _, a := range answers {
		topicID, err := d.state.TargetID(statestore.KindTopic, statestore.IntKey(a.ThreadID))
		if err != nil {
			log.Printf("Verified answer for unimported thread %d, skipping", a.ThreadID)
			stats.Skipped++
			continue
		}
		postID, err := d.state.TargetID(statestore.KindPost, statestore.IntKey(a.ReplyID))
		if err != nil {
			log.Printf("Verified reply %d not imported, skipping", a.ReplyID)
			stats.Skipped++
			continue
		}
		if err := d.client.MarkSolved(topicID, postID); err != nil {
			return err
		}
		stats.Solved++
	}
	return nil
}

// excerpt reduces the original HTML body to a single plain-text line.
func excerpt(html string) string {
	text := strings.Join(strings.Fields(html2text.HTML2Text(html)), " ")
	r := []rune(text)
	if len(r) > excerptLength {
		return string(r[:excerptLength])
	}
	return text
}

func pinnedUntil(sticky *time.Time, now time.Time) *time.Time {
	if sticky == nil || !sticky.After(now) {
		return nil
	}
	return sticky
}
