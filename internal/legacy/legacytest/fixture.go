// Package legacytest builds throwaway SQLite copies of the source schema
// for reader and driver tests.
package legacytest

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		display_name TEXT,
		created_at DATETIME NOT NULL,
		banned_until DATETIME,
		ban_reason TEXT
	)`,
	`CREATE TABLE user_profile (
		user_id INTEGER NOT NULL,
		profile_key TEXT NOT NULL,
		profile_value TEXT
	)`,
	`CREATE TABLE forum_groups (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE forums (
		id INTEGER PRIMARY KEY,
		group_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE threads (
		id INTEGER PRIMARY KEY,
		forum_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		is_locked INTEGER NOT NULL DEFAULT 0,
		sticky_until DATETIME
	)`,
	`CREATE TABLE replies (
		id INTEGER PRIMARY KEY,
		thread_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		parent_id INTEGER,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		verified_at DATETIME
	)`,
	`CREATE TABLE attachments (
		id INTEGER PRIMARY KEY,
		application_type_id INTEGER NOT NULL,
		application_id INTEGER NOT NULL,
		content_type_id INTEGER NOT NULL,
		content_id INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		is_remote INTEGER NOT NULL DEFAULT 0
	)`,
}

// Open creates a fresh source database in the test's temp dir.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "source.db"))
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to create fixture schema: %v", err)
		}
	}
	return db
}

func exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("fixture insert failed: %v", err)
	}
}

func AddUser(t testing.TB, db *sql.DB, id int64, email, username, displayName string, createdAt time.Time) {
	exec(t, db, `INSERT INTO users (id, email, username, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, username, displayName, createdAt)
}

func BanUser(t testing.TB, db *sql.DB, id int64, until time.Time, reason string) {
	exec(t, db, `UPDATE users SET banned_until = ?, ban_reason = ? WHERE id = ?`, until, reason, id)
}

func AddProfile(t testing.TB, db *sql.DB, userID int64, key, value string) {
	exec(t, db, `INSERT INTO user_profile (user_id, profile_key, profile_value) VALUES (?, ?, ?)`,
		userID, key, value)
}

func AddGroup(t testing.TB, db *sql.DB, id int64, name string, sortOrder int) {
	exec(t, db, `INSERT INTO forum_groups (id, name, description, sort_order) VALUES (?, ?, '', ?)`,
		id, name, sortOrder)
}

func AddForum(t testing.TB, db *sql.DB, id, groupID int64, name string, sortOrder int) {
	exec(t, db, `INSERT INTO forums (id, group_id, name, description, sort_order) VALUES (?, ?, ?, '', ?)`,
		id, groupID, name, sortOrder)
}

func AddThread(t testing.TB, db *sql.DB, id, forumID, userID int64, subject, body string, createdAt time.Time) {
	exec(t, db, `INSERT INTO threads (id, forum_id, user_id, subject, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, forumID, userID, subject, body, createdAt)
}

func LockThread(t testing.TB, db *sql.DB, id int64) {
	exec(t, db, `UPDATE threads SET is_locked = 1 WHERE id = ?`, id)
}

func StickyThread(t testing.TB, db *sql.DB, id int64, until time.Time) {
	exec(t, db, `UPDATE threads SET sticky_until = ? WHERE id = ?`, until, id)
}

func AddReply(t testing.TB, db *sql.DB, id, threadID, userID, parentID int64, body string, createdAt time.Time) {
	var parent any
	if parentID != 0 {
		parent = parentID
	}
	exec(t, db, `INSERT INTO replies (id, thread_id, user_id, parent_id, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, threadID, userID, parent, body, createdAt)
}

func VerifyReply(t testing.TB, db *sql.DB, id int64, at time.Time) {
	exec(t, db, `UPDATE replies SET verified_at = ? WHERE id = ?`, at, id)
}

func AddAttachment(t testing.TB, db *sql.DB, contentTypeID int, contentID int64, fileName string, remote bool) {
	exec(t, db, `INSERT INTO attachments (application_type_id, application_id, content_type_id, content_id, file_name, is_remote)
		VALUES (1, 1, ?, ?, ?, ?)`, contentTypeID, contentID, fileName, remote)
}
