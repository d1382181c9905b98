package engine

import (
	"maps"
	"sort"
	"sync"

	"github.com/roach88/cpcflow/internal/value"
)

// Persistence is the private key-value state of one instance as seen by
// one invocation. Set is buffered; the buffer is committed with the rest
// of the invocation's batch or dropped with it.
type Persistence struct {
	mu        sync.Mutex
	committed map[string]*value.Value
	pending   map[string]*value.Value // nil value = delete
}

func newPersistence(committed map[string]*value.Value) *Persistence {
	return &Persistence{
		committed: committed,
		pending:   make(map[string]*value.Value),
	}
}

// Get returns the value stored under key, nil if there is none. Values
// set earlier in the same invocation are visible.
func (p *Persistence) Get(key string) *value.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.pending[key]; ok {
		return v
	}
	return p.committed[key]
}

// Set buffers v under key. A nil v deletes the key.
func (p *Persistence) Set(key string, v *value.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[key] = v
}

// Keys returns the keys visible to Get, sorted.
func (p *Persistence) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var keys []string
	for k := range p.committed {
		if v, ok := p.pending[k]; ok && v == nil {
			continue
		}
		keys = append(keys, k)
	}
	for k, v := range p.pending {
		if _, ok := p.committed[k]; !ok && v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// changes returns the buffered writes.
func (p *Persistence) changes() map[string]*value.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.pending)
}
