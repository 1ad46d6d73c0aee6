// Package store provides the in-memory flag and segment store read by the
// evaluator and written by the update stream.
package store

import (
	"sync"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

// FeatureStore holds versioned flags and segments. Writes with a version at
// or below the stored version are ignored; deletes leave a versioned
// tombstone so late patches cannot resurrect an item.
type FeatureStore struct {
	mu          sync.RWMutex
	flags       map[string]*model.FeatureFlag
	segments    map[string]*model.Segment
	initialized bool
}

// New creates an empty, uninitialized store.
func New() *FeatureStore {
	return &FeatureStore{
		flags:    make(map[string]*model.FeatureFlag),
		segments: make(map[string]*model.Segment),
	}
}

// Init replaces the entire contents of the store and marks it initialized.
func (s *FeatureStore) Init(flags map[string]*model.FeatureFlag, segments map[string]*model.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags = make(map[string]*model.FeatureFlag, len(flags))
	for k, f := range flags {
		s.flags[k] = f
	}
	s.segments = make(map[string]*model.Segment, len(segments))
	for k, seg := range segments {
		s.segments[k] = seg
	}
	s.initialized = true
}

// Upsert stores the item unless a same-or-newer version is already present.
// Returns whether the write was applied.
func (s *FeatureStore) Upsert(kind model.DataKind, item model.VersionedData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case model.DataKindFlag:
		flag, ok := item.(*model.FeatureFlag)
		if !ok {
			return false
		}
		if existing, found := s.flags[flag.Key]; found && existing.Version >= flag.Version {
			return false
		}
		s.flags[flag.Key] = flag
		return true
	case model.DataKindSegment:
		segment, ok := item.(*model.Segment)
		if !ok {
			return false
		}
		if existing, found := s.segments[segment.Key]; found && existing.Version >= segment.Version {
			return false
		}
		s.segments[segment.Key] = segment
		return true
	}
	return false
}

// Delete writes a tombstone for the key unless a same-or-newer version is
// already present. Returns whether the delete was applied.
func (s *FeatureStore) Delete(kind model.DataKind, key string, version int) bool {
	switch kind {
	case model.DataKindFlag:
		return s.Upsert(kind, &model.FeatureFlag{Key: key, Version: version, Deleted: true})
	case model.DataKindSegment:
		return s.Upsert(kind, &model.Segment{Key: key, Version: version, Deleted: true})
	}
	return false
}

// GetFlag returns the flag for key, or nil when absent or deleted.
func (s *FeatureStore) GetFlag(key string) *model.FeatureFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if flag, ok := s.flags[key]; ok && !flag.Deleted {
		return flag
	}
	return nil
}

// GetSegment returns the segment for key, or nil when absent or deleted.
func (s *FeatureStore) GetSegment(key string) *model.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if segment, ok := s.segments[key]; ok && !segment.Deleted {
		return segment
	}
	return nil
}

// AllFlags returns the live (non-deleted) flags keyed by flag key.
func (s *FeatureStore) AllFlags() map[string]*model.FeatureFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*model.FeatureFlag, len(s.flags))
	for k, f := range s.flags {
		if !f.Deleted {
			out[k] = f
		}
	}
	return out
}

// IsInitialized reports whether Init has been called at least once.
func (s *FeatureStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
