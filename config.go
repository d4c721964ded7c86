package fedcoord

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/pelletier/go-toml"
)

const (
	DefManagerURL = "http://localhost:7070"

	learningRateKey = "learning_rate"
	filePermission  = 0o644
)

// Config is the run file shared by the CLI and the manager.
type Config struct {
	Manager ManagerConfig `toml:"manager"`
	Run     RunConfig     `toml:"run"`
}

type ManagerConfig struct {
	URL             string `toml:"url"`
	TLSVerification bool   `toml:"tls_verification"`
}

// RunConfig overrides the manager run settings. Zero values keep the
// manager's own setting.
type RunConfig struct {
	Rounds              uint64  `toml:"rounds"`
	FitFraction         float64 `toml:"fit_fraction"`
	EvaluateFraction    float64 `toml:"evaluate_fraction"`
	MinFitClients       int     `toml:"min_fit_clients"`
	MinEvaluateClients  int     `toml:"min_evaluate_clients"`
	MinAvailableClients int     `toml:"min_available_clients"`
	QuorumRatio         float64 `toml:"quorum_ratio"`
	RoundTimeout        string  `toml:"round_timeout"`
	RoundRetries        int     `toml:"round_retries"`
	SelectionPolicy     string  `toml:"selection_policy"`
	Seed                uint64  `toml:"seed"`
	LocalEpochs         uint    `toml:"local_epochs"`
	BatchSize           uint    `toml:"batch_size"`
	LearningRate        float64 `toml:"learning_rate"`
	Schedule            string  `toml:"schedule"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Apply returns cfg with every field set in the run file replaced.
func (r RunConfig) Apply(cfg manager.Config) (manager.Config, error) {
	if r.Rounds > 0 {
		cfg.Rounds = r.Rounds
	}
	if r.FitFraction > 0 {
		cfg.FitFraction = r.FitFraction
	}
	if r.EvaluateFraction > 0 {
		cfg.EvaluateFraction = r.EvaluateFraction
	}
	if r.MinFitClients > 0 {
		cfg.MinFitClients = r.MinFitClients
	}
	if r.MinEvaluateClients > 0 {
		cfg.MinEvaluateClients = r.MinEvaluateClients
	}
	if r.MinAvailableClients > 0 {
		cfg.MinAvailableClients = r.MinAvailableClients
	}
	if r.QuorumRatio > 0 {
		cfg.QuorumRatio = r.QuorumRatio
	}
	if r.RoundTimeout != "" {
		d, err := time.ParseDuration(r.RoundTimeout)
		if err != nil {
			return manager.Config{}, fmt.Errorf("invalid round_timeout: %w", err)
		}
		cfg.RoundTimeout = d
	}
	if r.RoundRetries > 0 {
		cfg.RoundRetries = r.RoundRetries
	}
	if r.SelectionPolicy != "" {
		cfg.SelectionPolicy = r.SelectionPolicy
	}
	if r.Seed > 0 {
		cfg.Seed = r.Seed
	}
	if r.LocalEpochs > 0 {
		cfg.LocalEpochs = r.LocalEpochs
	}
	if r.BatchSize > 0 {
		cfg.BatchSize = r.BatchSize
	}
	if r.Schedule != "" {
		cfg.Schedule = r.Schedule
	}

	return cfg, cfg.Validate()
}

// Request builds the run request the CLI submits.
func (r RunConfig) Request() manager.RunRequest {
	req := manager.RunRequest{
		Rounds: r.Rounds,
		Fit: fl.RoundConfig{
			Epochs:    r.LocalEpochs,
			BatchSize: r.BatchSize,
		},
		Evaluate: fl.RoundConfig{
			BatchSize: r.BatchSize,
		},
	}
	if r.LearningRate > 0 {
		req.Fit.Hyperparams = map[string]any{learningRateKey: r.LearningRate}
	}

	return req
}
