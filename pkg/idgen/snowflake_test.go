package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake_RejectsInvalidWorkerID(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)

	s, err := NewSnowflake(maxWorkerID)
	require.NoError(t, err)
	assert.Positive(t, s.Generate())
}

func TestSnowflake_GenerateIsMonotonic(t *testing.T) {
	s, err := NewSnowflake(7)
	require.NoError(t, err)

	prev := s.Generate()
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, int64(7), (prev>>workerIDShift)&maxWorkerID)
}

func TestNextID_UniqueUnderConcurrency(t *testing.T) {
	const goroutines, perG = 8, 500

	var (
		mu  sync.Mutex
		ids = make(map[int64]struct{}, goroutines*perG)
		wg  sync.WaitGroup
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perG)
			for i := 0; i < perG; i++ {
				local = append(local, NextID())
			}
			mu.Lock()
			for _, id := range local {
				ids[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, goroutines*perG)
}
