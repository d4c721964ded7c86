package selection

import (
	"math/rand/v2"
	"sync"

	"github.com/absmach/fedcoord/registry"
)

type random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a uniform sampler. Two samplers built with the same seed
// produce the same sequence of selections for the same inputs.
func NewRandom(seed uint64) Policy {
	return &random{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (r *random) Select(available []registry.Proxy, fraction float64, minCount int) ([]registry.Proxy, error) {
	target, err := Target(len(available), fraction, minCount)
	if err != nil {
		return nil, err
	}

	pool := sortByID(available)
	if target == len(pool) {
		return pool, nil
	}

	r.mu.Lock()
	r.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	r.mu.Unlock()

	return sortByID(pool[:target]), nil
}
