package alerts

import (
	"errors"
	"fmt"
	"sync"
)

// Chains groups elements that watch the same source, e.g. the same metric
// schedule or resource. It is owned by the cache that builds the elements;
// elements never link to each other.
type Chains[K comparable] struct {
	mu     sync.RWMutex
	chains map[K][]Element
}

func NewChains[K comparable]() *Chains[K] {
	return &Chains[K]{chains: make(map[K][]Element)}
}

// Add appends e to the chain for key. An element equal to one already in the
// chain replaces it.
func (c *Chains[K]) Add(key K, e Element) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chain := c.chains[key]
	for i, existing := range chain {
		if existing.Equal(e) {
			chain[i] = e
			return
		}
	}
	c.chains[key] = append(chain, e)
}

// Get returns a snapshot of the chain for key.
func (c *Chains[K]) Get(key K) []Element {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chain := c.chains[key]
	out := make([]Element, len(chain))
	copy(out, chain)
	return out
}

// RemoveCondition drops every element of conditionID and returns how many
// were removed.
func (c *Chains[K]) RemoveCondition(conditionID int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, chain := range c.chains {
		kept := chain[:0]
		for _, e := range chain {
			if e.ConditionID() == conditionID {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(c.chains, key)
		} else {
			c.chains[key] = kept
		}
	}
	return removed
}

// Keys returns every key with at least one element.
func (c *Chains[K]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.chains))
	for k := range c.chains {
		keys = append(keys, k)
	}
	return keys
}

// Len is the total number of elements across all chains.
func (c *Chains[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, chain := range c.chains {
		n += len(chain)
	}
	return n
}

// Each calls fn for every element until fn returns false.
func (c *Chains[K]) Each(fn func(key K, e Element) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, chain := range c.chains {
		for _, e := range chain {
			if !fn(k, e) {
				return
			}
		}
	}
}

// Dispatch processes value against every element chained under key and
// returns the elements that matched. Evaluation errors do not stop the
// remaining elements; they are joined into the returned error.
func (c *Chains[K]) Dispatch(key K, value any, extras ...any) ([]Element, error) {
	var (
		matched []Element
		errs    []error
	)
	for _, e := range c.Get(key) {
		ok, err := e.Process(value, extras...)
		if err != nil {
			errs = append(errs, fmt.Errorf("condition %d: %w", e.ConditionID(), err))
			continue
		}
		if ok {
			matched = append(matched, e)
		}
	}
	return matched, errors.Join(errs...)
}
