// Package legacy reads the source community platform's relational schema.
// All reads are paginated by primary key watermarks: callers pass the last
// id they saw and get back at most batchSize rows with strictly greater ids.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"forumport/internal/entities"
)

// Attachment content-type discriminators in the source's attachments table.
const (
	ContentTypeThread = 1
	ContentTypeReply  = 2
)

// Profile keys in the source's key/value profile table.
const (
	profileKeyBio      = "bio"
	profileKeyLocation = "location"
	profileKeyWebsite  = "website"
	profileKeyAvatar   = "avatar"
)

// Reader wraps an open source connection. The connection is an explicit
// dependency: production wires a MySQL handle, tests wire SQLite.
type Reader struct {
	db        *sql.DB
	batchSize int
}

func NewReader(db *sql.DB, batchSize int) *Reader {
	return &Reader{db: db, batchSize: batchSize}
}

func (r *Reader) BatchSize() int {
	return r.batchSize
}

// Groups returns the full group set ordered by sort order.
func (r *Reader) Groups(ctx context.Context) ([]entities.LegacyGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, sort_order
		FROM forum_groups
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []entities.LegacyGroup
	for rows.Next() {
		var g entities.LegacyGroup
		var description sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &description, &g.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Description = description.String
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Forums returns the full forum set ordered by group, then sort order.
func (r *Reader) Forums(ctx context.Context) ([]entities.LegacyForum, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, name, description, sort_order
		FROM forums
		ORDER BY group_id, sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forums: %w", err)
	}
	defer rows.Close()

	var forums []entities.LegacyForum
	for rows.Next() {
		var f entities.LegacyForum
		var description sql.NullString
		if err := rows.Scan(&f.ID, &f.GroupID, &f.Name, &description, &f.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan forum: %w", err)
		}
		f.Description = description.String
		forums = append(forums, f)
	}
	return forums, rows.Err()
}

// ForumCounts returns the number of forums per group id, computed over the
// full forum table. The category resolver's collapsing rule depends on the
// full set, never a windowed batch.
func (r *Reader) ForumCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, COUNT(*)
		FROM forums
		GROUP BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count forums: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var groupID int64
		var n int
		if err := rows.Scan(&groupID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan forum count: %w", err)
		}
		counts[groupID] = n
	}
	return counts, rows.Err()
}

// ActiveUsers returns the next batch of users that authored at least one
// thread or reply, with profile fields merged from the key/value table.
func (r *Reader) ActiveUsers(ctx context.Context, watermark int64) ([]entities.LegacyUser, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.username, u.display_name, u.created_at,
		       u.banned_until, u.ban_reason
		FROM users u
		WHERE u.id > ?
		  AND (EXISTS (SELECT 1 FROM threads t WHERE t.user_id = u.id)
		    OR EXISTS (SELECT 1 FROM replies p WHERE p.user_id = u.id))
		ORDER BY u.id
		LIMIT ?`, watermark, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []entities.LegacyUser
	for rows.Next() {
		var u entities.LegacyUser
		var displayName, banReason sql.NullString
		var bannedUntil sql.NullTime
		err := rows.Scan(&u.ID, &u.Email, &u.Username, &displayName,
			&u.CreatedAt, &bannedUntil, &banReason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.DisplayName = displayName.String
		u.BanReason = banReason.String
		if bannedUntil.Valid {
			t := bannedUntil.Time
			u.BannedUntil = &t
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	if err := r.mergeProfiles(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *Reader) mergeProfiles(ctx context.Context, users []entities.LegacyUser) error {
	if len(users) == 0 {
		return nil
	}

	index := make(map[int64]*entities.LegacyUser, len(users))
	ids := make([]any, 0, len(users))
	for i := range users {
		index[users[i].ID] = &users[i]
		ids = append(ids, users[i].ID)
	}

	query := fmt.Sprintf(`
		SELECT user_id, profile_key, profile_value
		FROM user_profile
		WHERE user_id IN (%s)`, placeholders(len(ids)))

	rows, err := r.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var key string
		var value sql.NullString
		if err := rows.Scan(&userID, &key, &value); err != nil {
			return fmt.Errorf("failed to scan profile row: %w", err)
		}
		u, ok := index[userID]
		if !ok {
			continue
		}
		switch key {
		case profileKeyBio:
			u.Bio = value.String
		case profileKeyLocation:
			u.Location = value.String
		case profileKeyWebsite:
			u.Website = value.String
		case profileKeyAvatar:
			u.AvatarRef = value.String
		}
	}
	return rows.Err()
}

// Topics returns the next batch of threads, excluding ignored forums.
func (r *Reader) Topics(ctx context.Context, watermark int64, ignoredForums []int64) ([]entities.LegacyTopic, error) {
	query := `
		SELECT t.id, t.forum_id, t.user_id, t.subject, t.body, t.created_at,
		       t.is_locked, t.sticky_until,
		       a.application_type_id, a.application_id, a.content_type_id,
		       a.content_id, a.file_name, a.is_remote
		FROM threads t
		LEFT JOIN attachments a
		  ON a.content_type_id = ? AND a.content_id = t.id
		WHERE t.id > ?`
	args := []any{ContentTypeThread, watermark}
	if len(ignoredForums) > 0 {
		query += fmt.Sprintf(" AND t.forum_id NOT IN (%s)", placeholders(len(ignoredForums)))
		for _, id := range ignoredForums {
			args = append(args, id)
		}
	}
	query += " ORDER BY t.id LIMIT ?"
	args = append(args, r.batchSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var topics []entities.LegacyTopic
	for rows.Next() {
		var t entities.LegacyTopic
		var locked sql.NullBool
		var stickyUntil sql.NullTime
		var att attachmentColumns
		err := rows.Scan(&t.ID, &t.ForumID, &t.UserID, &t.Subject, &t.Body,
			&t.CreatedAt, &locked, &stickyUntil,
			&att.appTypeID, &att.appID, &att.contentTypeID,
			&att.contentID, &att.fileName, &att.isRemote)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		t.Locked = locked.Bool
		if stickyUntil.Valid {
			ts := stickyUntil.Time
			t.StickyUntil = &ts
		}
		t.Attachment = att.descriptor()
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Posts returns the next batch of replies, excluding replies whose thread
// belongs to an ignored forum.
func (r *Reader) Posts(ctx context.Context, watermark int64, ignoredForums []int64) ([]entities.LegacyPost, error) {
	query := `
		SELECT p.id, p.thread_id, p.user_id, p.parent_id, p.body,
		       p.created_at, p.verified_at,
		       a.application_type_id, a.application_id, a.content_type_id,
		       a.content_id, a.file_name, a.is_remote
		FROM replies p
		JOIN threads t ON t.id = p.thread_id
		LEFT JOIN attachments a
		  ON a.content_type_id = ? AND a.content_id = p.id
		WHERE p.id > ?`
	args := []any{ContentTypeReply, watermark}
	if len(ignoredForums) > 0 {
		query += fmt.Sprintf(" AND t.forum_id NOT IN (%s)", placeholders(len(ignoredForums)))
		for _, id := range ignoredForums {
			args = append(args, id)
		}
	}
	query += " ORDER BY p.id LIMIT ?"
	args = append(args, r.batchSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var posts []entities.LegacyPost
	for rows.Next() {
		var p entities.LegacyPost
		var parentID sql.NullInt64
		var verifiedAt sql.NullTime
		var att attachmentColumns
		err := rows.Scan(&p.ID, &p.ThreadID, &p.UserID, &parentID, &p.Body,
			&p.CreatedAt, &verifiedAt,
			&att.appTypeID, &att.appID, &att.contentTypeID,
			&att.contentID, &att.fileName, &att.isRemote)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		p.ParentID = parentID.Int64
		if verifiedAt.Valid {
			ts := verifiedAt.Time
			p.VerifiedAt = &ts
		}
		p.Attachment = att.descriptor()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// VerifiedAnswers returns, for each thread that has any verified reply, the
// earliest such reply by id. Runs once, after the post phase.
func (r *Reader) VerifiedAnswers(ctx context.Context) ([]entities.VerifiedAnswer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT thread_id, MIN(id)
		FROM replies
		WHERE verified_at IS NOT NULL
		GROUP BY thread_id
		ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query verified answers: %w", err)
	}
	defer rows.Close()

	var answers []entities.VerifiedAnswer
	for rows.Next() {
		var a entities.VerifiedAnswer
		if err := rows.Scan(&a.ThreadID, &a.ReplyID); err != nil {
			return nil, fmt.Errorf("failed to scan verified answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// attachmentColumns holds the nullable LEFT JOIN columns for one row.
type attachmentColumns struct {
	appTypeID     sql.NullInt64
	appID         sql.NullInt64
	contentTypeID sql.NullInt64
	contentID     sql.NullInt64
	fileName      sql.NullString
	isRemote      sql.NullBool
}

func (a attachmentColumns) descriptor() *entities.AttachmentDescriptor {
	if !a.contentID.Valid || a.fileName.String == "" {
		return nil
	}
	return &entities.AttachmentDescriptor{
		ApplicationTypeID: int(a.appTypeID.Int64),
		ApplicationID:     int(a.appID.Int64),
		ContentTypeID:     int(a.contentTypeID.Int64),
		ContentID:         a.contentID.Int64,
		FileName:          a.fileName.String,
		IsRemote:          a.isRemote.Bool,
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
