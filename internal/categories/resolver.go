// Package categories builds the target category tree, either from an
// explicit mapping config or by mirroring the legacy group/forum hierarchy
// with single-child collapsing.
package categories

import (
	"fmt"
	"hash/fnv"
	"log"
	"strings"

	"forumport/internal/entities"
	"forumport/internal/statestore"
)

// Creator is the slice of the target creation API the resolver needs.
type Creator interface {
	CreateCategory(p entities.CategoryPayload, after func(*entities.Category) error) (*entities.Category, error)
}

type Resolver struct {
	state   *statestore.Store
	creator Creator
}

func NewResolver(state *statestore.Store, creator Creator) *Resolver {
	return &Resolver{state: state, creator: creator}
}

// pathKey computes the stable identity of a category path prefix. Shared
// prefixes across mapping entries collapse to the same key, and therefore
// to the same parent category.
func pathKey(segments []string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(segments, "/")))
	return fmt.Sprintf("path:%016x", h.Sum64())
}

func groupKey(id int64) string {
	return fmt.Sprintf("group:%d", id)
}

func forumPermalink(forumID int64) string {
	return fmt.Sprintf("f/%d", forumID)
}

// BuildExplicit creates categories from the mapping config. Re-running is a
// no-op for every prefix that already has an identity mapping.
func (r *Resolver) BuildExplicit(cfg *MappingConfig) error {
	for _, entry := range cfg.Mapping {
		var parentID int64
		var leafID int64

		for i := range entry.Category {
			prefix := entry.Category[:i+1]
			key := pathKey(prefix)

			existing, err := r.state.TargetID(statestore.KindCategory, key)
			if err == nil {
				parentID = existing
				leafID = existing
				continue
			}
			if err != statestore.ErrNotFound {
				return err
			}

			payload := entities.CategoryPayload{
				Name:     entry.Category[i],
				ParentID: parentID,
				Position: i,
			}
			created, err := r.creator.CreateCategory(payload, func(c *entities.Category) error {
				return r.state.Record(statestore.KindCategory, key, c.ID)
			})
			if err != nil {
				return fmt.Errorf("failed to create category %q: %w", strings.Join(prefix, "/"), err)
			}
			parentID = created.ID
			leafID = created.ID
		}

		for _, binding := range entry.Forums {
			if err := r.bindForum(binding.ID, leafID); err != nil {
				return err
			}
			if binding.Tag != "" {
				log.Printf("Forum %d bound to category %d with tag %q", binding.ID, leafID, binding.Tag)
			}
		}
	}
	return nil
}

// BuildInferred mirrors the legacy hierarchy: groups become top-level
// categories and forums their children. A group with exactly one forum
// (over the full forum set) is elided and the forum becomes top-level.
func (r *Resolver) BuildInferred(groups []entities.LegacyGroup, forums []entities.LegacyForum, forumCounts map[int64]int) error {
	groupCategory := make(map[int64]int64)

	for _, g := range groups {
		if forumCounts[g.ID] == 1 {
			continue // collapsed: the lone forum takes the group's place
		}

		key := groupKey(g.ID)
		existing, err := r.state.TargetID(statestore.KindCategory, key)
		if err == nil {
			groupCategory[g.ID] = existing
			continue
		}
		if err != statestore.ErrNotFound {
			return err
		}

		payload := entities.CategoryPayload{
			Name:        g.Name,
			Description: g.Description,
			Position:    g.SortOrder,
		}
		created, err := r.creator.CreateCategory(payload, func(c *entities.Category) error {
			return r.state.Record(statestore.KindCategory, key, c.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to create group category %q: %w", g.Name, err)
		}
		groupCategory[g.ID] = created.ID
	}

	for _, f := range forums {
		forum := f
		existing, err := r.state.TargetID(statestore.KindForum, statestore.IntKey(forum.ID))
		if err == nil {
			// Category already existed: side effects run immediately and
			// must match what the post-create hook would have done.
			if err := r.bindForum(forum.ID, existing); err != nil {
				return err
			}
			continue
		}
		if err != statestore.ErrNotFound {
			return err
		}

		payload := entities.CategoryPayload{
			Name:        forum.Name,
			Description: forum.Description,
			ParentID:    groupCategory[forum.GroupID], // 0 when the group collapsed
			Position:    forum.SortOrder,
		}
		_, err = r.creator.CreateCategory(payload, func(c *entities.Category) error {
			return r.bindForum(forum.ID, c.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to create forum category %q: %w", forum.Name, err)
		}
	}
	return nil
}

// bindForum records the forum -> category association and the legacy deep
// link alias. Both operations are first-write-wins, so running this twice
// is harmless.
func (r *Resolver) bindForum(forumID, categoryID int64) error {
	if err := r.state.Record(statestore.KindForum, statestore.IntKey(forumID), categoryID); err != nil {
		return err
	}
	return r.state.RegisterPermalink(forumPermalink(forumID), statestore.KindCategory, categoryID)
}
