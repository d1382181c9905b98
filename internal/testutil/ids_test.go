package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDGenerator_Sequence(t *testing.T) {
	g := NewSequentialIDGenerator("run1")
	assert.Equal(t, "run1-0001", g.Generate())
	assert.Equal(t, "run1-0002", g.Generate())
	assert.Equal(t, 2, g.Count())
}

func TestSequentialIDGenerator_DefaultPrefix(t *testing.T) {
	g := NewSequentialIDGenerator("")
	assert.Equal(t, "inv-0001", g.Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	g := NewSequentialIDGenerator("p")
	const goroutines = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines, "every id must be unique")
}
