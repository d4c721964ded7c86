package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/selection"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const defConfigPath = "fedcoord.toml"

var errNotPositive = errors.New("must be a positive integer")

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [init]",
		Short: "Run file",
		Long:  `Create the run file used by 'runs start --config' and the manager.`,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create run file",
		Long:  `Interactively create a run file. The default path is fedcoord.toml.`,
		Run: func(cmd *cobra.Command, args []string) {
			path := defConfigPath
			switch len(args) {
			case 0:
			case 1:
				path = args[0]
			default:
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg, err := promptConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := cfg.Save(path); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, fmt.Sprintf("Successfully created %s", path))
			logJSONCmd(*cmd, cfg)
		},
	}

	cmd.AddCommand(initCmd)

	return cmd
}

type configForm struct {
	managerURL      string
	rounds          string
	minClients      string
	localEpochs     string
	batchSize       string
	selectionPolicy string
	roundTimeout    string
}

func promptConfig() (fedcoord.Config, error) {
	f := configForm{
		managerURL:      fedcoord.DefManagerURL,
		rounds:          "3",
		minClients:      "2",
		localEpochs:     "1",
		batchSize:       "32",
		selectionPolicy: selection.Random,
		roundTimeout:    "60s",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Manager URL").
				Value(&f.managerURL),
			huh.NewInput().
				Title("Rounds").
				Value(&f.rounds).
				Validate(positive),
			huh.NewInput().
				Title("Minimum clients per phase").
				Value(&f.minClients).
				Validate(positive),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Local epochs").
				Value(&f.localEpochs).
				Validate(positive),
			huh.NewInput().
				Title("Batch size").
				Value(&f.batchSize).
				Validate(positive),
			huh.NewSelect[string]().
				Title("Selection policy").
				Options(
					huh.NewOption("Seeded random", selection.Random),
					huh.NewOption("Round robin", selection.RoundRobin),
				).
				Value(&f.selectionPolicy),
			huh.NewInput().
				Title("Round timeout").
				Value(&f.roundTimeout),
		),
	)
	if err := form.Run(); err != nil {
		return fedcoord.Config{}, err
	}

	return f.config()
}

func (f configForm) config() (fedcoord.Config, error) {
	rounds, err := strconv.ParseUint(f.rounds, 10, 64)
	if err != nil {
		return fedcoord.Config{}, err
	}
	minClients, err := strconv.Atoi(f.minClients)
	if err != nil {
		return fedcoord.Config{}, err
	}
	epochs, err := strconv.ParseUint(f.localEpochs, 10, 32)
	if err != nil {
		return fedcoord.Config{}, err
	}
	batch, err := strconv.ParseUint(f.batchSize, 10, 32)
	if err != nil {
		return fedcoord.Config{}, err
	}

	return fedcoord.Config{
		Manager: fedcoord.ManagerConfig{URL: f.managerURL},
		Run: fedcoord.RunConfig{
			Rounds:              rounds,
			MinFitClients:       minClients,
			MinEvaluateClients:  minClients,
			MinAvailableClients: minClients,
			RoundTimeout:        f.roundTimeout,
			SelectionPolicy:     f.selectionPolicy,
			LocalEpochs:         uint(epochs),
			BatchSize:           uint(batch),
		},
	}, nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errNotPositive
	}

	return nil
}
