package coordinator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// PhaseConfig controls participation in one phase of a round.
type PhaseConfig struct {
	// Fraction of the available clients to sample, in [0, 1].
	Fraction float64
	// MinClients is the lower bound on the sample size.
	MinClients int
	// MinResults is how many successful replies publish the phase. Zero
	// falls back to MinClients.
	MinResults int
	// QuorumRatio, when positive, raises the requirement to that share of
	// the selected clients.
	QuorumRatio float64
}

func (p PhaseConfig) Disabled() bool {
	return p.Fraction == 0 && p.MinClients == 0
}

// Required returns the number of successful results needed when selected
// clients were sampled. It is never below one.
func (p PhaseConfig) Required(selected int) int {
	required := p.MinResults
	if required == 0 {
		required = p.MinClients
	}
	if p.QuorumRatio > 0 {
		required = max(required, int(math.Floor(p.QuorumRatio*float64(selected))))
	}

	return max(required, 1)
}

func (p PhaseConfig) validate(name string) error {
	if math.IsNaN(p.Fraction) || p.Fraction < 0 || p.Fraction > 1 {
		return fmt.Errorf("%s fraction %v outside [0, 1]", name, p.Fraction)
	}
	if p.MinClients < 0 || p.MinResults < 0 {
		return fmt.Errorf("%s client counts must not be negative", name)
	}
	if p.QuorumRatio < 0 || p.QuorumRatio > 1 {
		return fmt.Errorf("%s quorum ratio %v outside [0, 1]", name, p.QuorumRatio)
	}

	return nil
}

type Config struct {
	Fit      PhaseConfig
	Evaluate PhaseConfig
	// MinAvailable is the number of available clients a round needs before
	// it starts selecting.
	MinAvailable int
	RoundTimeout time.Duration
}

func (c Config) Validate() error {
	if c.Fit.Disabled() {
		return errors.New("fit phase must select at least one client")
	}
	if err := c.Fit.validate("fit"); err != nil {
		return err
	}
	if err := c.Evaluate.validate("evaluate"); err != nil {
		return err
	}
	if c.MinAvailable < 0 {
		return errors.New("min available clients must not be negative")
	}
	if c.RoundTimeout <= 0 {
		return errors.New("round timeout must be positive")
	}

	return nil
}
