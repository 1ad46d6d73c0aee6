package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserKeysNotice(t *testing.T) {
	c, err := newUserKeysCache(10)
	require.NoError(t, err)

	assert.False(t, c.notice("u1"))
	assert.True(t, c.notice("u1"))
	assert.False(t, c.notice("u2"))
}

func TestUserKeysEviction(t *testing.T) {
	c, err := newUserKeysCache(2)
	require.NoError(t, err)

	c.notice("u1")
	c.notice("u2")
	// u3 evicts u1, the least recently used key.
	c.notice("u3")

	assert.False(t, c.notice("u1"))
	assert.True(t, c.notice("u3"))
}

func TestUserKeysNoticeRefreshesRecency(t *testing.T) {
	c, err := newUserKeysCache(2)
	require.NoError(t, err)

	c.notice("u1")
	c.notice("u2")
	c.notice("u1")
	// u2 is now least recently used and gets evicted.
	c.notice("u3")

	assert.True(t, c.notice("u1"))
	assert.False(t, c.notice("u2"))
}

func TestUserKeysClear(t *testing.T) {
	c, err := newUserKeysCache(10)
	require.NoError(t, err)

	c.notice("u1")
	c.clear()

	assert.False(t, c.notice("u1"))
}
