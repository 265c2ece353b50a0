package skinrestorer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInflightRegistry(t *testing.T) {
	t.Run("begin and end", func(t *testing.T) {
		registry := newInflightRegistry()
		require.True(t, registry.TryBegin("uuid1"))
		require.False(t, registry.TryBegin("uuid1"))
		require.True(t, registry.TryBegin("uuid2"))

		registry.End("uuid1")
		require.True(t, registry.TryBegin("uuid1"))
	})

	t.Run("only one concurrent winner per key", func(t *testing.T) {
		registry := newInflightRegistry()
		var winners int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if registry.TryBegin("uuid") {
					atomic.AddInt32(&winners, 1)
				}
			}()
		}

		wg.Wait()
		require.EqualValues(t, 1, winners)
	})
}
