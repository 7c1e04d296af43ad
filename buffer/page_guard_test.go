package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageGuard(t *testing.T) {
	t.Run("dropping a guard releases the pin", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		guard, err := bufferMgr.ReadPage(1)
		assert.NoError(t, err)
		assert.Equal(t, int32(1), bufferMgr.frames[0].pins.Load())

		other, err := bufferMgr.ReadPage(1)
		assert.NoError(t, err)
		assert.Equal(t, int32(2), bufferMgr.frames[0].pins.Load())

		guard.Drop()
		other.Drop()
		assert.Equal(t, int32(0), bufferMgr.frames[0].pins.Load())

		// with no pins left the frame is evictable again
		assert.Equal(t, 1, bufferMgr.replacer.size())
	})

	t.Run("drop is idempotent", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		guard, err := bufferMgr.WritePage(1)
		assert.NoError(t, err)

		guard.Drop()
		guard.Drop()
		assert.Equal(t, int32(0), bufferMgr.frames[0].pins.Load())
	})

	t.Run("a write guard dirties the page only when mutated", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		guard, err := bufferMgr.WritePage(1)
		assert.NoError(t, err)
		assert.False(t, bufferMgr.frames[0].dirty)

		_ = guard.GetData()
		assert.False(t, bufferMgr.frames[0].dirty)

		copy(guard.GetDataMut(), []byte("mutated"))
		assert.True(t, bufferMgr.frames[0].dirty)
		guard.Drop()
	})

	t.Run("mutating through a basic guard marks the page dirty", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		guard, err := bufferMgr.FetchPage(1)
		assert.NoError(t, err)
		defer guard.Drop()

		assert.False(t, bufferMgr.frames[0].dirty)
		copy(guard.GetDataMut(), []byte("mutated"))
		assert.True(t, bufferMgr.frames[0].dirty)
	})

	t.Run("many readers share a page", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		setup, err := bufferMgr.WritePage(1)
		assert.NoError(t, err)
		copy(setup.GetDataMut(), []byte("shared"))
		setup.Drop()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				guard, err := bufferMgr.ReadPage(1)
				assert.NoError(t, err)
				defer guard.Drop()

				assert.Equal(t, []byte("shared"), guard.GetData()[:6])
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(0), bufferMgr.frames[0].pins.Load())
	})

	t.Run("writers exclude each other", func(t *testing.T) {
		diskScheduler := createScheduler(t)
		bufferMgr := NewBufferpoolManager(2, NewLrukReplacer(2), diskScheduler)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n byte) {
				defer wg.Done()

				guard, err := bufferMgr.WritePage(1)
				assert.NoError(t, err)
				defer guard.Drop()

				// both bytes always come from the same writer
				data := guard.GetDataMut()
				data[0] = n
				data[1] = n
			}(byte(i))
		}
		wg.Wait()

		guard, err := bufferMgr.ReadPage(1)
		assert.NoError(t, err)
		defer guard.Drop()
		assert.Equal(t, guard.GetData()[0], guard.GetData()[1])
	})
}
