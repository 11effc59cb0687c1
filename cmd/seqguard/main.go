// seqguard clusters network traffic online and reports anomalies.
//
// Usage:
//
//	seqguard run -i eth0 --eps 0.5 --min-samples 5
//	seqguard run -r capture.pcap --workers 8 --drain-count 500
//	seqguard replay features_preprocessed.csv --eps 0.5 --min-samples 5
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "seqguard",
		Short: "Online density clustering for network traffic anomalies",
		Long: `seqguard turns captured packets into feature vectors and clusters them
one at a time with a sequential DBSCAN. Points that land in noise, and
cluster members whose k-distance is far above their cluster's mean, are
reported as anomalies.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.bind(rootCmd)

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(replayCmd(opts))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "seqguard %s\n", version)
		},
	}
}
