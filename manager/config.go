package manager

import (
	"errors"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/selection"
)

var errInvalidRetries = errors.New("round retries must not be negative")

// Config is the run configuration. Field tags are relative to the
// MANAGER_ prefix.
type Config struct {
	Rounds              uint64        `env:"ROUNDS"                envDefault:"3"           toml:"rounds"`
	FitFraction         float64       `env:"FIT_FRACTION"          envDefault:"1.0"         toml:"fit_fraction"`
	EvaluateFraction    float64       `env:"EVALUATE_FRACTION"     envDefault:"1.0"         toml:"evaluate_fraction"`
	MinFitClients       int           `env:"MIN_FIT_CLIENTS"       envDefault:"2"           toml:"min_fit_clients"`
	MinEvaluateClients  int           `env:"MIN_EVALUATE_CLIENTS"  envDefault:"2"           toml:"min_evaluate_clients"`
	MinAvailableClients int           `env:"MIN_AVAILABLE_CLIENTS" envDefault:"2"           toml:"min_available_clients"`
	MinFitResults       int           `env:"MIN_FIT_RESULTS"       envDefault:"0"           toml:"min_fit_results"`
	MinEvaluateResults  int           `env:"MIN_EVALUATE_RESULTS"  envDefault:"0"           toml:"min_evaluate_results"`
	QuorumRatio         float64       `env:"QUORUM_RATIO"          envDefault:"0"           toml:"quorum_ratio"`
	RoundTimeout        time.Duration `env:"ROUND_TIMEOUT"         envDefault:"60s"         toml:"round_timeout"`
	RoundRetries        int           `env:"ROUND_RETRIES"         envDefault:"2"           toml:"round_retries"`
	RetryInterval       time.Duration `env:"RETRY_INTERVAL"        envDefault:"5s"          toml:"retry_interval"`
	EvictionThreshold   int           `env:"EVICTION_THRESHOLD"    envDefault:"3"           toml:"eviction_threshold"`
	AliveTimeout        time.Duration `env:"ALIVE_TIMEOUT"         envDefault:"30s"         toml:"alive_timeout"`
	SelectionPolicy     string        `env:"SELECTION_POLICY"      envDefault:"random"      toml:"selection_policy"`
	Seed                uint64        `env:"SEED"                  envDefault:"42"          toml:"seed"`
	LocalEpochs         uint          `env:"LOCAL_EPOCHS"          envDefault:"1"           toml:"local_epochs"`
	BatchSize           uint          `env:"BATCH_SIZE"            envDefault:"32"          toml:"batch_size"`
	Schedule            string        `env:"SCHEDULE"              envDefault:""            toml:"schedule"`
}

func (c Config) Validate() error {
	if c.RoundRetries < 0 {
		return errInvalidRetries
	}
	if _, err := selection.New(c.SelectionPolicy, c.Seed); err != nil {
		return err
	}
	if c.Schedule != "" {
		if err := cron.ValidateCronExpression(c.Schedule); err != nil {
			return err
		}
	}

	return c.Coordinator().Validate()
}

// Coordinator derives the per-round settings.
func (c Config) Coordinator() coordinator.Config {
	return coordinator.Config{
		Fit: coordinator.PhaseConfig{
			Fraction:    c.FitFraction,
			MinClients:  c.MinFitClients,
			MinResults:  c.MinFitResults,
			QuorumRatio: c.QuorumRatio,
		},
		Evaluate: coordinator.PhaseConfig{
			Fraction:    c.EvaluateFraction,
			MinClients:  c.MinEvaluateClients,
			MinResults:  c.MinEvaluateResults,
			QuorumRatio: c.QuorumRatio,
		},
		MinAvailable: c.MinAvailableClients,
		RoundTimeout: c.RoundTimeout,
	}
}

// RunRequest builds the request of a scheduled or CLI-started run.
func (c Config) RunRequest() RunRequest {
	return RunRequest{
		Rounds: c.Rounds,
		Fit: fl.RoundConfig{
			Epochs:    c.LocalEpochs,
			BatchSize: c.BatchSize,
		},
		Evaluate: fl.RoundConfig{
			BatchSize: c.BatchSize,
		},
	}
}
