package selection

import (
	"sync"

	"github.com/absmach/fedcoord/registry"
)

type roundRobin struct {
	mu   sync.Mutex
	next int
}

// NewRoundRobin returns a policy that walks the id-ordered pool in a
// rotating window, so every client is picked before any is picked twice.
func NewRoundRobin() Policy {
	return &roundRobin{}
}

func (r *roundRobin) Select(available []registry.Proxy, fraction float64, minCount int) ([]registry.Proxy, error) {
	target, err := Target(len(available), fraction, minCount)
	if err != nil {
		return nil, err
	}

	pool := sortByID(available)
	if target == len(pool) {
		return pool, nil
	}

	r.mu.Lock()
	start := r.next % len(pool)
	r.next = (start + target) % len(pool)
	r.mu.Unlock()

	selected := make([]registry.Proxy, 0, target)
	for i := range target {
		selected = append(selected, pool[(start+i)%len(pool)])
	}

	return sortByID(selected), nil
}
