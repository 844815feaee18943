package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs_Sequence(t *testing.T) {
	ids := NewSequentialIDs("scn")
	assert.Equal(t, int64(0), ids.Issued())
	assert.Equal(t, "scn-0001", ids.Generate())
	assert.Equal(t, "scn-0002", ids.Generate())
	assert.Equal(t, int64(2), ids.Issued())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "req-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	ids := NewSequentialIDs("")
	ids.Generate()
	ids.Generate()
	ids.Reset()
	assert.Equal(t, "req-0001", ids.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("")
	const goroutines = 50
	const calls = 40

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				id := ids.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls, "every id is unique")
	assert.Equal(t, int64(goroutines*calls), ids.Issued())
}
