package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateULIDSequentialOrdering(t *testing.T) {
	const total = 100
	ids := make([]string, total)
	for i := range ids {
		ids[i] = CreateULID()
	}

	for i, id := range ids {
		require.Len(t, id, 26)
		_, err := ulid.Parse(id)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, ids[i-1], id)
		}
	}
}

func TestCreateULIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 25

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				id := CreateULID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestCorrelationIDOrNew(t *testing.T) {
	t.Run("keeps supplied value", func(t *testing.T) {
		assert.Equal(t, "job-42", CorrelationIDOrNew("  job-42 "))
	})

	t.Run("generates uuid when blank", func(t *testing.T) {
		id := CorrelationIDOrNew("   ")
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.NotEqual(t, id, NewCorrelationID())
	})
}
