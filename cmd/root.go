package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tripsync",
		Short:         "Keep bookings and notifications in sync with the push server",
		Long:          "tripsync connects to the push endpoint, keeps a local cache of bookings, notifications, properties, POIs and experiences, and prints the notices the server sends.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newConfigCmd(),
		newWatchCmd(),
	)
	return rootCmd
}
