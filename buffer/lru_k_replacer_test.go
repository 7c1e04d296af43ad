package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLrukReplacer(t *testing.T) {
	t.Run("frames with fewer than k accesses are evicted first", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		// A, B, C, A, B: A and B reach k accesses, C doesn't
		replacer.recordAccess(1)
		replacer.recordAccess(2)
		replacer.recordAccess(3)
		replacer.recordAccess(1)
		replacer.recordAccess(2)

		replacer.setEvictable(1, true)
		replacer.setEvictable(2, true)
		replacer.setEvictable(3, true)
		assert.Equal(t, 3, replacer.size())

		assert.Equal(t, 3, replacer.evict())

		// among cached frames the oldest kth-back access goes first
		assert.Equal(t, 1, replacer.evict())
		assert.Equal(t, 2, replacer.evict())

		assert.Equal(t, 0, replacer.size())
		assert.Equal(t, INVALID_FRAME_ID, replacer.evict())
	})

	t.Run("prefers the oldest frame if all have fewer than k accesses", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(2)
		replacer.recordAccess(3)
		replacer.recordAccess(1)

		replacer.setEvictable(1, true)
		replacer.setEvictable(2, true)
		replacer.setEvictable(3, true)

		assert.Equal(t, 2, replacer.evict())
		assert.Equal(t, 3, replacer.evict())
		assert.Equal(t, 1, replacer.evict())
	})

	t.Run("prefers the oldest kth access if all have k accesses", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(3)
		replacer.recordAccess(3)
		replacer.recordAccess(2)
		replacer.recordAccess(2)
		replacer.recordAccess(1)
		replacer.recordAccess(1)

		replacer.setEvictable(1, true)
		replacer.setEvictable(2, true)
		replacer.setEvictable(3, true)

		assert.Equal(t, 3, replacer.evict())
		assert.Equal(t, 2, replacer.evict())
		assert.Equal(t, 1, replacer.evict())
	})

	t.Run("a fresh access reorders the cached list", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(1)
		replacer.recordAccess(1)
		replacer.recordAccess(2)
		replacer.recordAccess(2)

		// two more accesses push 1's kth-back access past 2's
		replacer.recordAccess(1)
		replacer.recordAccess(1)

		replacer.setEvictable(1, true)
		replacer.setEvictable(2, true)

		assert.Equal(t, 2, replacer.evict())
		assert.Equal(t, 1, replacer.evict())
	})

	t.Run("non-evictable frames are skipped", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(1)
		replacer.recordAccess(2)

		replacer.setEvictable(2, true)

		assert.Equal(t, 1, replacer.size())
		assert.Equal(t, 2, replacer.evict())
		assert.Equal(t, INVALID_FRAME_ID, replacer.evict())
	})

	t.Run("remove drops an evictable frame", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(1)
		replacer.setEvictable(1, true)

		replacer.remove(1)
		assert.Equal(t, 0, replacer.size())
		assert.Equal(t, INVALID_FRAME_ID, replacer.evict())

		// removing an unknown frame is a no-op
		replacer.remove(7)
	})

	t.Run("removing a non-evictable frame panics", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(1)

		assert.Panics(t, func() {
			replacer.remove(1)
		})
	})

	t.Run("size only counts evictable frames", func(t *testing.T) {
		replacer := NewLrukReplacer(2)

		replacer.recordAccess(1)
		replacer.recordAccess(2)
		replacer.recordAccess(3)
		assert.Equal(t, 0, replacer.size())

		replacer.setEvictable(1, true)
		replacer.setEvictable(2, true)
		assert.Equal(t, 2, replacer.size())

		replacer.setEvictable(2, false)
		assert.Equal(t, 1, replacer.size())
	})
}
