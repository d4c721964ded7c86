package cli

import (
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/spf13/cobra"
)

func NewRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds [list|view]",
		Short: "Round log",
		Long:  `Inspect the records of published rounds.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rounds",
		Long:  `List published round records.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListRounds(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <round>",
		Short: "View round",
		Long:  `View the record of one round.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			round, err := parseRound(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			rec, err := fsdk.GetRound(round)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}

func NewParametersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parameters [round]",
		Short: "Global parameters",
		Long: `View the global parameters. Without a round the current version is shown.

Examples:
  fedcoord-cli parameters
  fedcoord-cli parameters 2`,
		Run: func(cmd *cobra.Command, args []string) {
			var (
				params fl.ParameterSet
				err    error
			)
			switch len(args) {
			case 0:
				params, err = fsdk.LatestParameters()
			case 1:
				var round uint64
				if round, err = parseRound(args[0]); err == nil {
					params, err = fsdk.GetParameters(round)
				}
			default:
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, params)
		},
	}
}
