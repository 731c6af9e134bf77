package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Observation store cache feeder and series streamer",
		Long: `obscore populates the content cache of a sensor observation service from
its relational store and streams large observation series in bounded chunks.

Settings come from defaults, an optional YAML file (--config) and OBSCORE_*
environment variables, in increasing order of precedence.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(
		rebuildCmd(flags),
		seriesCmd(flags),
		seedCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}
