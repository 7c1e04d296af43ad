package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexIterator(t *testing.T) {
	t.Run("walks every entry in key order", func(t *testing.T) {
		bplus := createTree(t)

		expected := []int64{}
		for k := int64(1); k <= 20; k++ {
			_, err := bplus.Insert(k, k*10)
			require.NoError(t, err)
			expected = append(expected, k)
		}

		assert.Equal(t, expected, collectKeys(t, bplus))

		iter, err := bplus.Begin()
		require.NoError(t, err)
		assert.Equal(t, int64(1), iter.Key())
		assert.Equal(t, int64(10), iter.Value())
		iter.Drop()
	})

	t.Run("begin on an empty tree is end", func(t *testing.T) {
		bplus := createTree(t)

		iter, err := bplus.Begin()
		assert.NoError(t, err)
		assert.True(t, iter.IsEnd())
		assert.True(t, iter.Equals(bplus.End()))
	})

	t.Run("begin at a key seeks to the first entry at or above it", func(t *testing.T) {
		bplus := createTree(t)
		for _, k := range []int64{2, 4, 6, 8, 10, 12, 14} {
			_, err := bplus.Insert(k, k)
			require.NoError(t, err)
		}

		iter, err := bplus.BeginAt(7)
		require.NoError(t, err)
		assert.Equal(t, int64(8), iter.Key())
		iter.Drop()

		iter, err = bplus.BeginAt(8)
		require.NoError(t, err)
		assert.Equal(t, int64(8), iter.Key())
		iter.Drop()

		iter, err = bplus.BeginAt(100)
		require.NoError(t, err)
		assert.True(t, iter.IsEnd())
	})

	t.Run("find positions at the exact key", func(t *testing.T) {
		bplus := createTree(t)
		for k := int64(1); k <= 10; k++ {
			_, err := bplus.Insert(k, k*10)
			require.NoError(t, err)
		}

		iter, err := bplus.Find(7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), iter.Key())
		assert.Equal(t, int64(70), iter.Value())
		iter.Drop()

		iter, err = bplus.Find(11)
		require.NoError(t, err)
		assert.True(t, iter.IsEnd())
	})

	t.Run("first seeks the head of a prefix group", func(t *testing.T) {
		bpm := createBpm(t, 16)
		bplus, err := NewBplusTree(
			"composite", bpm,
			BytesCodec(16), Int64Codec(), BytesOrder(),
			WithLeafMaxSize(4), WithInternalMaxSize(4),
		)
		require.NoError(t, err)

		for group := 0; group < 4; group++ {
			for seq := 0; seq < 4; seq++ {
				_, err := bplus.Insert(compositeKey(uint64(group), uint64(seq)), int64(group*10+seq))
				require.NoError(t, err)
			}
		}

		prefixCmp := func(a, b []byte) int {
			return BytesOrder()(a[:8], b[:8])
		}

		iter, err := bplus.First(compositeKey(2, 0), prefixCmp)
		require.NoError(t, err)
		assert.Equal(t, int64(20), iter.Value())
		iter.Drop()

		iter, err = bplus.First(compositeKey(9, 0), prefixCmp)
		require.NoError(t, err)
		assert.True(t, iter.IsEnd())
	})

	t.Run("iterators compare by position and every end is equal", func(t *testing.T) {
		bplus := createTree(t)
		for k := int64(1); k <= 5; k++ {
			_, err := bplus.Insert(k, k)
			require.NoError(t, err)
		}

		a, err := bplus.Begin()
		require.NoError(t, err)
		b, err := bplus.Begin()
		require.NoError(t, err)

		assert.True(t, a.Equals(b))

		require.NoError(t, a.Next())
		assert.False(t, a.Equals(b))

		a.Drop()
		b.Drop()
		assert.True(t, bplus.End().Equals(bplus.End()))
	})

	t.Run("advancing past the end panics", func(t *testing.T) {
		bplus := createTree(t)

		assert.Panics(t, func() {
			_ = bplus.End().Next()
		})
	})
}
