package selection

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/registry"
)

const (
	Random     = "random"
	RoundRobin = "round_robin"
)

// Policy picks the participants of one round phase from the proxies that
// are currently available.
type Policy interface {
	Select(available []registry.Proxy, fraction float64, minCount int) ([]registry.Proxy, error)
}

// New returns the policy registered under name.
func New(name string, seed uint64) (Policy, error) {
	switch name {
	case Random, "":
		return NewRandom(seed), nil
	case RoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("unsupported selection policy: %s", name)
	}
}

// Target returns how many proxies a phase needs out of n available ones.
func Target(n int, fraction float64, minCount int) (int, error) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return 0, fmt.Errorf("%w: %v", fl.ErrInvalidFraction, fraction)
	}
	if minCount < 0 {
		minCount = 0
	}
	if n < minCount {
		return 0, fmt.Errorf("%w: %d available, %d required", fl.ErrInsufficientClients, n, minCount)
	}
	if fraction == 1 {
		return n, nil
	}

	return min(n, max(minCount, int(math.Ceil(fraction*float64(n))))), nil
}

func sortByID(proxies []registry.Proxy) []registry.Proxy {
	sorted := slices.Clone(proxies)
	slices.SortFunc(sorted, func(a, b registry.Proxy) int {
		return strings.Compare(a.ID, b.ID)
	})

	return sorted
}
