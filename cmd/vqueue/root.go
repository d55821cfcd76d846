package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var basePathFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &basePathFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "vqueue",
		Short:         "Persistent queue with per-consumer cursors",
		Version:       vqueue.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("vqueue version %s\n", vqueue.Version))

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&basePathFlag, "base-path", "", "Directory holding the queues")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newPushCommand(ctx))
	rootCmd.AddCommand(newPopCommand(ctx))
	rootCmd.AddCommand(newTailCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newConvertCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
