package trainer

import (
	"math/rand"
)

// NumLabels is the number of classes Synthetic draws labels from. Labels
// below NumLabels/2 are negatives, the rest positives.
const NumLabels = 10

type Sample struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// Target is the binary class the model predicts for s.
func (s Sample) Target() float64 {
	if s.Label >= NumLabels/2 {
		return 1
	}

	return 0
}

func SampleLabel(s Sample) int {
	return s.Label
}

// Synthetic draws n samples of the given width. Each label has its own
// feature centroid so a label-sorted split yields skewed client shards. The
// same seed always produces the same dataset.
func Synthetic(n, features int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float64, NumLabels)
	for l := range centroids {
		c := make([]float64, features)
		sign := -1.0
		if l >= NumLabels/2 {
			sign = 1.0
		}
		for j := range c {
			c[j] = sign*(0.5+rng.Float64()) + 0.25*float64(l%(NumLabels/2))
		}
		centroids[l] = c
	}

	out := make([]Sample, n)
	for i := range out {
		l := rng.Intn(NumLabels)
		x := make([]float64, features)
		for j := range x {
			x[j] = centroids[l][j] + rng.NormFloat64()
		}
		out[i] = Sample{Features: x, Label: l}
	}

	return out
}
