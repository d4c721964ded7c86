package cli

import (
	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

func NewRunsCmd() *cobra.Command {
	var (
		configPath   string
		rounds       uint64
		epochs       uint
		batchSize    uint
		learningRate float64
	)

	cmd := &cobra.Command{
		Use:   "runs [start|view]",
		Short: "Training runs",
		Long:  `Start training runs and follow their progress.`,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start run",
		Long: `Start a background training run on the manager.

Examples:
  # Run three rounds with the manager defaults
  fedcoord-cli runs start --rounds 3

  # Run with the settings of a run file
  fedcoord-cli runs start --config fedcoord.toml`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			run := fedcoord.RunConfig{}
			if configPath != "" {
				cfg, err := fedcoord.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				run = cfg.Run
			}
			if cmd.Flags().Changed("rounds") {
				run.Rounds = rounds
			}
			if cmd.Flags().Changed("epochs") {
				run.LocalEpochs = epochs
			}
			if cmd.Flags().Changed("batch-size") {
				run.BatchSize = batchSize
			}
			if cmd.Flags().Changed("learning-rate") {
				run.LearningRate = learningRate
			}

			req := run.Request()
			r, err := fsdk.StartRun(sdk.RunRequest{
				Rounds:   req.Rounds,
				Fit:      req.Fit,
				Evaluate: req.Evaluate,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	startCmd.Flags().StringVarP(&configPath, "config", "c", "", "Run file written by 'config init'")
	startCmd.Flags().Uint64VarP(&rounds, "rounds", "r", 3, "Number of rounds")
	startCmd.Flags().UintVar(&epochs, "epochs", 1, "Local epochs per fit")
	startCmd.Flags().UintVar(&batchSize, "batch-size", 32, "Local batch size")
	startCmd.Flags().Float64Var(&learningRate, "learning-rate", 0, "Learning rate passed to clients")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View run progress.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.GetRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	cmd.AddCommand(startCmd)
	cmd.AddCommand(viewCmd)

	return cmd
}
