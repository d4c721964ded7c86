// Package trainer is a reference local trainer: binary logistic regression
// fitted with mini-batch gradient descent.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/absmach/fedcoord/pkg/fl"
	"gonum.org/v1/gonum/mat"
)

const (
	defEpochs       = 1
	defBatchSize    = 32
	defLearningRate = 0.1

	learningRateKey = "learning_rate"
	lossKey         = "loss"
	accuracyKey     = "accuracy"

	epsilon = 1e-12
)

var (
	_ fl.Trainer = (*Model)(nil)

	ErrNoTrainingData = errors.New("no training data")
	ErrNoTestData     = errors.New("no test data")
)

// Model holds one client's weights and its local data. Parameters are a
// weight vector of length Features followed by a single bias value.
type Model struct {
	mu           sync.Mutex
	features     int
	learningRate float64
	seed         int64
	weights      *mat.VecDense
	bias         float64
	train        dataset
	test         dataset
}

type dataset struct {
	x *mat.Dense
	y *mat.VecDense
}

func newDataset(samples []Sample, features int) (dataset, error) {
	if len(samples) == 0 {
		return dataset{}, nil
	}
	x := mat.NewDense(len(samples), features, nil)
	y := mat.NewVecDense(len(samples), nil)
	for i, s := range samples {
		if len(s.Features) != features {
			return dataset{}, fmt.Errorf("sample %d has %d features, want %d", i, len(s.Features), features)
		}
		x.SetRow(i, s.Features)
		y.SetVec(i, s.Target())
	}

	return dataset{x: x, y: y}, nil
}

func (d dataset) len() int {
	if d.y == nil {
		return 0
	}

	return d.y.Len()
}

type Option func(*Model)

func WithLearningRate(lr float64) Option {
	return func(m *Model) {
		m.learningRate = lr
	}
}

// WithSeed sets the seed of the per-round shuffling.
func WithSeed(seed int64) Option {
	return func(m *Model) {
		m.seed = seed
	}
}

func New(features int, train, test []Sample, opts ...Option) (*Model, error) {
	if features <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive", fl.ErrInvalidTensor)
	}
	tr, err := newDataset(train, features)
	if err != nil {
		return nil, err
	}
	te, err := newDataset(test, features)
	if err != nil {
		return nil, err
	}

	m := &Model{
		features:     features,
		learningRate: defLearningRate,
		weights:      mat.NewVecDense(features, nil),
		train:        tr,
		test:         te,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Model) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	if err := ctx.Err(); err != nil {
		return fl.ParameterSet{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.parameters(0), nil
}

func (m *Model) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.FitResult, error) {
	if m.train.len() == 0 {
		return fl.FitResult{}, ErrNoTrainingData
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(params); err != nil {
		return fl.FitResult{}, err
	}

	epochs := int(cfg.Epochs)
	if epochs == 0 {
		epochs = defEpochs
	}
	batch := int(cfg.BatchSize)
	if batch == 0 {
		batch = defBatchSize
	}
	lr := m.learningRate
	if v, ok := cfg.Hyperparams[learningRateKey].(float64); ok && v > 0 {
		lr = v
	}

	n := m.train.len()
	rng := rand.New(rand.NewSource(m.seed + int64(cfg.Round)))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for e := 0; e < epochs; e++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return fl.FitResult{}, err
			}
			end := min(start+batch, n)
			m.step(order[start:end], lr)
		}
	}

	loss, _ := m.score(m.train)

	return fl.FitResult{
		Parameters: m.parameters(params.Round),
		NumSamples: uint64(n),
		Metrics:    fl.Metrics{lossKey: loss},
	}, nil
}

func (m *Model) Evaluate(ctx context.Context, params fl.ParameterSet, _ fl.RoundConfig) (fl.EvaluateResult, error) {
	if m.test.len() == 0 {
		return fl.EvaluateResult{}, ErrNoTestData
	}
	if err := ctx.Err(); err != nil {
		return fl.EvaluateResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(params); err != nil {
		return fl.EvaluateResult{}, err
	}
	loss, acc := m.score(m.test)

	return fl.EvaluateResult{
		Loss:       loss,
		NumSamples: uint64(m.test.len()),
		Metrics:    fl.Metrics{accuracyKey: acc},
	}, nil
}

func (m *Model) parameters(round uint64) fl.ParameterSet {
	w := make([]float64, m.features)
	copy(w, m.weights.RawVector().Data)

	return fl.ParameterSet{
		Round: round,
		Tensors: []fl.Tensor{
			{Shape: []int{m.features}, Values: w},
			{Shape: []int{1}, Values: []float64{m.bias}},
		},
	}
}

func (m *Model) load(params fl.ParameterSet) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := m.parameters(0).CompatibleWith(params); err != nil {
		return err
	}
	for i, v := range params.Tensors[0].Values {
		m.weights.SetVec(i, v)
	}
	m.bias = params.Tensors[1].Values[0]

	return nil
}

// step applies one gradient descent update over the given rows.
func (m *Model) step(rows []int, lr float64) {
	size := float64(len(rows))
	grad := mat.NewVecDense(m.features, nil)
	var gradBias float64
	for _, r := range rows {
		x := m.train.x.RowView(r)
		residual := sigmoid(mat.Dot(x, m.weights)+m.bias) - m.train.y.AtVec(r)
		grad.AddScaledVec(grad, residual, x)
		gradBias += residual
	}
	m.weights.AddScaledVec(m.weights, -lr/size, grad)
	m.bias -= lr * gradBias / size
}

// score returns the mean binary cross-entropy and the accuracy on d.
func (m *Model) score(d dataset) (float64, float64) {
	n := d.len()
	logits := mat.NewVecDense(n, nil)
	logits.MulVec(d.x, m.weights)

	var loss float64
	var correct int
	for i := 0; i < n; i++ {
		p := sigmoid(logits.AtVec(i) + m.bias)
		y := d.y.AtVec(i)
		loss -= y*math.Log(p+epsilon) + (1-y)*math.Log(1-p+epsilon)
		if (p >= 0.5) == (y == 1) {
			correct++
		}
	}

	return loss / float64(n), float64(correct) / float64(n)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
