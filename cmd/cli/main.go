package main

import (
	"log"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/cli"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	sdkConf := sdk.Config{
		ManagerURL: fedcoord.DefManagerURL,
	}

	rootCmd := &cobra.Command{
		Use:   "fedcoord-cli",
		Short: "Federated training CLI",
		Long:  `fedcoord-cli drives training runs on a fedcoord manager and inspects clients, rounds and parameters.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&sdkConf.ManagerURL, "manager-url", "m", sdkConf.ManagerURL, "Manager URL")
	rootCmd.PersistentFlags().BoolVar(&sdkConf.TLSVerification, "tls", false, "Verify the manager TLS certificate")

	rootCmd.AddCommand(cli.NewRunsCmd())
	rootCmd.AddCommand(cli.NewClientsCmd())
	rootCmd.AddCommand(cli.NewRoundsCmd())
	rootCmd.AddCommand(cli.NewParametersCmd())
	rootCmd.AddCommand(cli.NewConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
