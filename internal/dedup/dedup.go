// Package dedup implements the two-stage freshness and duplicate filter
// applied to fetched posts before keyword matching.
package dedup

import (
	"encoding/json"

	"github.com/Sxientrie/reddit-hawk/internal/model"
)

// MaxSeen caps the seen-set to keep session storage bounded.
const MaxSeen = 1000

// Fresh drops posts that are not newer than the latest hit ever
// surfaced. This guards against zombie posts: after a restart clears the
// seen-set, the upstream batch can still contain old posts that were
// already shown in a previous session. A zero watermark disables the
// stage (first run ever).
func Fresh(posts []model.Post, latestHit float64) []model.Post {
	if latestHit <= 0 {
		return posts
	}
	var fresh []model.Post
	for _, p := range posts {
		if p.CreatedUTC > latestHit {
			fresh = append(fresh, p)
		}
	}
	return fresh
}

// SeenSet is an insertion-ordered set of post IDs already processed,
// matched or not. Oldest entries are evicted once MaxSeen is exceeded.
type SeenSet struct {
	ids   []string
	index map[string]struct{}
}

// NewSeenSet returns an empty seen-set.
func NewSeenSet() *SeenSet {
	return &SeenSet{index: make(map[string]struct{})}
}

// FromIDs rebuilds a seen-set from its persisted form.
func FromIDs(ids []string) *SeenSet {
	s := NewSeenSet()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Contains reports whether id has already been processed.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add records id as processed, evicting the oldest entry when full.
func (s *SeenSet) Add(id string) {
	if s.Contains(id) {
		return
	}
	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}

	if len(s.ids) > MaxSeen {
		evicted := s.ids[0]
		s.ids = s.ids[1:]
		delete(s.index, evicted)
	}
}

// Filter returns the posts whose IDs are not yet in the set, preserving
// order. It does not mark anything seen; callers do that explicitly once
// a post has survived the full pipeline entry.
func (s *SeenSet) Filter(posts []model.Post) []model.Post {
	var unseen []model.Post
	for _, p := range posts {
		if !s.Contains(p.ID) {
			unseen = append(unseen, p)
		}
	}
	return unseen
}

// Len returns the number of tracked IDs.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// IDs returns the tracked IDs in insertion order.
func (s *SeenSet) IDs() []string {
	cp := make([]string, len(s.ids))
	copy(cp, s.ids)
	return cp
}

// MarshalJSON encodes the set as a plain ID array.
func (s *SeenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON rebuilds the set from an ID array.
func (s *SeenSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = *FromIDs(ids)
	return nil
}
