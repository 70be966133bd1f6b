package categories

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ForumBinding attaches one legacy forum to a mapping entry's leaf category,
// optionally labelling its topics with a tag.
type ForumBinding struct {
	ID  int64  `yaml:"id"`
	Tag string `yaml:"tag,omitempty"`
}

// MappingEntry binds a category path (1..N name segments, root first) to a
// set of legacy forums.
type MappingEntry struct {
	Category []string       `yaml:"category"`
	Forums   []ForumBinding `yaml:"forums"`
}

// MappingConfig is the optional, externally supplied category layout. When
// present it replaces the inferred group/forum hierarchy entirely.
type MappingConfig struct {
	IgnoredForumIDs []int64        `yaml:"ignored_forum_ids"`
	Mapping         []MappingEntry `yaml:"mapping"`
}

// LoadMapping reads and validates a mapping config file.
func LoadMapping(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config: %w", err)
	}

	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MappingConfig) validate() error {
	seen := make(map[int64]int) // forum id -> entry index
	for i, entry := range c.Mapping {
		if len(entry.Category) == 0 {
			return fmt.Errorf("mapping entry %d has an empty category path", i)
		}
		for _, seg := range entry.Category {
			if seg == "" {
				return fmt.Errorf("mapping entry %d has an empty path segment", i)
			}
		}
		for _, f := range entry.Forums {
			if prev, dup := seen[f.ID]; dup {
				return fmt.Errorf("forum %d appears in mapping entries %d and %d", f.ID, prev, i)
			}
			seen[f.ID] = i
		}
	}
	return nil
}

// Ignored returns the forum ids excluded from all topic and post extraction.
func (c *MappingConfig) Ignored() []int64 {
	if c == nil {
		return nil
	}
	return c.IgnoredForumIDs
}
