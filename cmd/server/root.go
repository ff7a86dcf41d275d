package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ardrone-svr/internal/config"
)

const Version = "0.3.0"

var (
	v = viper.New()

	RootCmd = &cobra.Command{
		Use:   "ardrone-svr",
		Short: "AT command / navdata controller for AR.Drone quadrotors",
		Long: fmt.Sprintf(`ardrone-svr (v%s)

Sends AT commands to the drone control port, decodes the navdata stream
and reads the configuration channel. Flags can also be set as environment
variables ARDRONE_<flag> (e.g. ARDRONE_DRONE_IP=192.168.1.1).`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ardrone-svr",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ardrone-svr v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(func() { config.InitEnv(v) })
	config.RegisterFlags(RootCmd)

	RootCmd.AddCommand(versionCmd, serveCmd, traceCmd, sendCmd)
}
