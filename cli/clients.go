package cli

import (
	"github.com/spf13/cobra"
)

func NewClientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients [register|list|remove]",
		Short: "Clients manager",
		Long:  `Register, list and remove training clients.`,
	}

	registerCmd := &cobra.Command{
		Use:   "register <id>",
		Short: "Register client",
		Long:  `Register a client that is reachable over MQTT.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.RegisterClient(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Long:  `List registered clients.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListClients(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove client",
		Long:  `Remove a client from the registry.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := fsdk.RemoveClient(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.AddCommand(registerCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(removeCmd)

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
