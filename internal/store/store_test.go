package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
)

func flagV(key string, version int) *model.FeatureFlag {
	return &model.FeatureFlag{Key: key, Version: version}
}

func TestInitReplacesContents(t *testing.T) {
	s := New()
	assert.False(t, s.IsInitialized())

	s.Init(
		map[string]*model.FeatureFlag{"f1": flagV("f1", 1)},
		map[string]*model.Segment{"s1": {Key: "s1", Version: 1}},
	)

	assert.True(t, s.IsInitialized())
	require.NotNil(t, s.GetFlag("f1"))
	require.NotNil(t, s.GetSegment("s1"))

	// A second init fully replaces the previous contents.
	s.Init(map[string]*model.FeatureFlag{"f2": flagV("f2", 1)}, nil)
	assert.Nil(t, s.GetFlag("f1"))
	assert.Nil(t, s.GetSegment("s1"))
	assert.NotNil(t, s.GetFlag("f2"))
}

func TestUpsertVersionGuard(t *testing.T) {
	s := New()

	assert.True(t, s.Upsert(model.DataKindFlag, flagV("f1", 2)))
	// Same and older versions are rejected.
	assert.False(t, s.Upsert(model.DataKindFlag, flagV("f1", 2)))
	assert.False(t, s.Upsert(model.DataKindFlag, flagV("f1", 1)))
	assert.Equal(t, 2, s.GetFlag("f1").Version)

	assert.True(t, s.Upsert(model.DataKindFlag, flagV("f1", 3)))
	assert.Equal(t, 3, s.GetFlag("f1").Version)
}

func TestUpsertRejectsMismatchedKind(t *testing.T) {
	s := New()

	assert.False(t, s.Upsert(model.DataKindFlag, &model.Segment{Key: "s1", Version: 1}))
	assert.False(t, s.Upsert(model.DataKindSegment, flagV("f1", 1)))
	assert.False(t, s.Upsert(model.DataKind("bogus"), flagV("f1", 1)))
}

func TestDeleteLeavesTombstone(t *testing.T) {
	s := New()
	s.Upsert(model.DataKindFlag, flagV("f1", 1))

	assert.True(t, s.Delete(model.DataKindFlag, "f1", 2))
	assert.Nil(t, s.GetFlag("f1"))

	// A stale patch cannot resurrect the deleted item.
	assert.False(t, s.Upsert(model.DataKindFlag, flagV("f1", 2)))
	assert.Nil(t, s.GetFlag("f1"))

	// A newer version can.
	assert.True(t, s.Upsert(model.DataKindFlag, flagV("f1", 3)))
	assert.NotNil(t, s.GetFlag("f1"))
}

func TestDeleteUnknownKeyStillWritesTombstone(t *testing.T) {
	s := New()

	assert.True(t, s.Delete(model.DataKindSegment, "s1", 5))
	assert.Nil(t, s.GetSegment("s1"))
	assert.False(t, s.Upsert(model.DataKindSegment, &model.Segment{Key: "s1", Version: 4}))
}

func TestAllFlagsExcludesTombstones(t *testing.T) {
	s := New()
	s.Upsert(model.DataKindFlag, flagV("f1", 1))
	s.Upsert(model.DataKindFlag, flagV("f2", 1))
	s.Delete(model.DataKindFlag, "f2", 2)

	flags := s.AllFlags()
	assert.Len(t, flags, 1)
	assert.Contains(t, flags, "f1")
}
