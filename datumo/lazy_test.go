package datumo

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazy_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	l := NewLazy("k", func() (int, error) {
		calls.Add(1)
		return 7, nil
	})
	assert.False(t, l.IsResolved())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Resolve()
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, l.IsResolved())
	assert.Equal(t, "k", l.Key())
}

func TestLazy_ErrorIsMemoizedAndWrapped(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	l := NewLazy("img.png", func() (string, error) {
		calls++
		return "", boom
	})
	for range 2 {
		_, err := l.Resolve()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDecodeFailure)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 1, calls)
}

func TestResolved(t *testing.T) {
	l := Resolved("v")
	assert.True(t, l.IsResolved())
	assert.Empty(t, l.Key())
	v, err := l.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
