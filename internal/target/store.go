package target

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"forumport/internal/entities"
)

// Store is a local, database-backed implementation of Client. It keeps
// entity records in SQLite and copies uploaded files under uploadsDir,
// addressed by upload UUID.
type Store struct {
	db         *gorm.DB
	uploadsDir string
}

// OpenStore opens (or creates) the target database at path and makes sure
// uploadsDir exists.
func OpenStore(path, uploadsDir string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.Category{},
		&entities.User{},
		&entities.Topic{},
		&entities.Post{},
		&entities.Upload{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate target database: %w", err)
	}

	if uploadsDir != "" {
		if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create uploads directory: %w", err)
		}
	}

	return &Store{db: db, uploadsDir: uploadsDir}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateCategory(p entities.CategoryPayload, after func(*entities.Category) error) (*entities.Category, error) {
	c := entities.Category{
		Name:        p.Name,
		Description: p.Description,
		ParentID:    p.ParentID,
		Position:    p.Position,
	}
	if err := s.db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("failed to create category %q: %w", p.Name, err)
	}
	if after != nil {
		if err := after(&c); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (s *Store) CreateUser(p entities.UserPayload, after func(*entities.User) error) (*entities.User, error) {
	u := entities.User{
		Email:          p.Email,
		Username:       p.Username,
		Name:           p.Name,
		Bio:            p.Bio,
		Location:       p.Location,
		Website:        p.Website,
		SuspendedUntil: p.SuspendedUntil,
		SuspendReason:  p.SuspendReason,
		AvatarUploadID: p.AvatarUploadID,
		CreatedAt:      p.CreatedAt,
	}
	if err := s.db.Create(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", p.Username, err)
	}
	if after != nil {
		if err := after(&u); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (s *Store) CreateTopic(p entities.TopicPayload, after func(*entities.Topic) error) (*entities.Topic, error) {
	t := entities.Topic{
		CategoryID:  p.CategoryID,
		AuthorID:    p.AuthorID,
		Title:       p.Title,
		Body:        p.Body,
		Excerpt:     p.Excerpt,
		Closed:      p.Closed,
		PinnedUntil: p.PinnedUntil,
		CreatedAt:   p.CreatedAt,
	}
	if err := s.db.Create(&t).Error; err != nil {
		return nil, fmt.Errorf("failed to create topic %q: %w", p.Title, err)
	}
	if after != nil {
		if err := after(&t); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Store) CreatePost(p entities.PostPayload, after func(*entities.Post) error) (*entities.Post, error) {
	post := entities.Post{
		TopicID:   p.TopicID,
		AuthorID:  p.AuthorID,
		ReplyToID: p.ReplyToID,
		Body:      p.Body,
		CreatedAt: p.CreatedAt,
	}
	if err := s.db.Create(&post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post in topic %d: %w", p.TopicID, err)
	}
	if after != nil {
		if err := after(&post); err != nil {
			return nil, err
		}
	}
	return &post, nil
}

// CreateUpload copies the file into the uploads directory and records it.
// Content is deduplicated by checksum: uploading a byte-identical file again
// returns the original record.
func (s *Store) CreateUpload(filePath, originalName string, authorID int64) (*entities.Upload, error) {
	sum, size, err := checksumFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload source %s: %w", filePath, err)
	}

	var existing entities.Upload
	err = s.db.Where("checksum = ?", sum).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	relPath := filepath.Join(id[:2], id+filepath.Ext(originalName))
	if err := copyFile(filePath, filepath.Join(s.uploadsDir, relPath)); err != nil {
		return nil, fmt.Errorf("failed to store upload %s: %w", originalName, err)
	}

	up := entities.Upload{
		UUID:         id,
		AuthorID:     authorID,
		OriginalName: originalName,
		RelativePath: relPath,
		MimeType:     mimeTypeFor(originalName),
		SizeBytes:    size,
		Checksum:     sum,
	}
	if err := s.db.Create(&up).Error; err != nil {
		return nil, fmt.Errorf("failed to record upload %s: %w", originalName, err)
	}
	return &up, nil
}

// MarkSolved records the accepted answer for a topic. A topic that already
// has one keeps it.
func (s *Store) MarkSolved(topicID, postID int64) error {
	res := s.db.Model(&entities.Topic{}).
		Where("id = ? AND solved_by_id = 0", topicID).
		Update("solved_by_id", postID)
	if res.Error != nil {
		return fmt.Errorf("failed to mark topic %d solved: %w", topicID, res.Error)
	}
	return nil
}

// Lookup helpers, used by the CLI summary and tests.

func (s *Store) TopicByID(id int64) (*entities.Topic, error) {
	var t entities.Topic
	if err := s.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) PostsForTopic(topicID int64) ([]entities.Post, error) {
	var posts []entities.Post
	err := s.db.Where("topic_id = ?", topicID).Order("id").Find(&posts).Error
	return posts, err
}

func (s *Store) UserByUsername(username string) (*entities.User, error) {
	var u entities.User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Categories() ([]entities.Category, error) {
	var cats []entities.Category
	err := s.db.Order("id").Find(&cats).Error
	return cats, err
}

func (s *Store) Uploads() ([]entities.Upload, error) {
	var ups []entities.Upload
	err := s.db.Order("id").Find(&ups).Error
	return ups, err
}

func (s *Store) Count(model any) (int64, error) {
	var n int64
	err := s.db.Model(model).Count(&n).Error
	return n, err
}

func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func mimeTypeFor(name string) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
