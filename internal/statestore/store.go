// Package statestore persists the migration's identity mappings and
// permalink registrations so that interrupted runs can resume without
// duplicating target-side records.
package statestore

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Kind names the entity relation an identity mapping belongs to.
type Kind string

const (
	KindCategory Kind = "category"
	// KindForum maps a legacy forum id to the target category its topics
	// land in. Distinct from KindCategory: several forums may share one
	// category under an explicit mapping.
	KindForum Kind = "forum"
	KindUser  Kind = "user"
	KindTopic Kind = "topic"
	KindPost  Kind = "post"
)

var ErrNotFound = errors.New("identity mapping not found")

// IdentityMapping associates one legacy key with the target id it was
// imported as. Append-only: a mapping is never updated once set.
type IdentityMapping struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      Kind   `gorm:"uniqueIndex:idx_kind_key;size:20"`
	LegacyKey string `gorm:"uniqueIndex:idx_kind_key;size:64"`
	TargetID  int64  `gorm:"index"`
	CreatedAt time.Time
}

// Permalink preserves an old deep link: URL path to target entity.
type Permalink struct {
	ID        uint   `gorm:"primaryKey"`
	URL       string `gorm:"uniqueIndex;size:512"`
	Kind      Kind   `gorm:"size:20"`
	TargetID  int64
	CreatedAt time.Time
}

// PermalinkNormalization is a URL rewrite pattern registered once at the
// start of a run so old-style links fold into the permalink table's shape.
type PermalinkNormalization struct {
	ID        uint   `gorm:"primaryKey"`
	Pattern   string `gorm:"uniqueIndex;size:512"`
	CreatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the migration state database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.AutoMigrate(
		&IdentityMapping{},
		&Permalink{},
		&PermalinkNormalization{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	log.Printf("State database ready at %s", path)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IntKey renders a numeric legacy id as a mapping key.
func IntKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Record stores legacyKey -> targetID for kind. First write wins; recording
// an already-mapped key is a no-op.
func (s *Store) Record(kind Kind, legacyKey string, targetID int64) error {
	exists, err := s.Exists(kind, legacyKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	m := IdentityMapping{Kind: kind, LegacyKey: legacyKey, TargetID: targetID}
	if err := s.db.Create(&m).Error; err != nil {
		return fmt.Errorf("failed to record %s mapping %s: %w", kind, legacyKey, err)
	}
	return nil
}

func (s *Store) Exists(kind Kind, legacyKey string) (bool, error) {
	var count int64
	err := s.db.Model(&IdentityMapping{}).
		Where("kind = ? AND legacy_key = ?", kind, legacyKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TargetID resolves a legacy key to its target id, or ErrNotFound.
func (s *Store) TargetID(kind Kind, legacyKey string) (int64, error) {
	var m IdentityMapping
	err := s.db.Where("kind = ? AND legacy_key = ?", kind, legacyKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return m.TargetID, nil
}

// AllExist reports whether every key in keys already has a mapping. Used by
// the driver to consume fully-imported batches without downstream work.
func (s *Store) AllExist(kind Kind, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	var count int64
	err := s.db.Model(&IdentityMapping{}).
		Where("kind = ? AND legacy_key IN ?", kind, keys).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(keys)), nil
}

// RegisterPermalink writes a URL alias unless the URL is already taken.
// Existing registrations are never overwritten.
func (s *Store) RegisterPermalink(url string, kind Kind, targetID int64) error {
	var count int64
	err := s.db.Model(&Permalink{}).Where("url = ?", url).Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	p := Permalink{URL: url, Kind: kind, TargetID: targetID}
	if err := s.db.Create(&p).Error; err != nil {
		return fmt.Errorf("failed to register permalink %s: %w", url, err)
	}
	return nil
}

// PermalinkTarget looks up a registered URL alias.
func (s *Store) PermalinkTarget(url string) (Kind, int64, error) {
	var p Permalink
	err := s.db.Where("url = ?", url).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}
	return p.Kind, p.TargetID, nil
}

// RegisterNormalization records a permalink rewrite pattern once.
func (s *Store) RegisterNormalization(pattern string) error {
	var count int64
	err := s.db.Model(&PermalinkNormalization{}).Where("pattern = ?", pattern).Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.Create(&PermalinkNormalization{Pattern: pattern}).Error
}
