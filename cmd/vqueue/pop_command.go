package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func newPopCommand(ctx *commandContext) *cobra.Command {
	var consumerFlag string
	var countFlag int
	var noCommit bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "pop <queue>",
		Short: "Read and commit records as a named consumer",
		Long: `Read up to --count records from the consumer's position and commit each one.

With --no-commit the next record is printed and left in place, so the
consumer reads it again next time. Records still being written are not
returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if consumerFlag == "" {
				return fmt.Errorf("--consumer is required")
			}
			if countFlag < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			c, release, err := ctx.openConsumer(consumerFlag, args[0], vqueue.ModeDefault, nil)
			if err != nil {
				return err
			}
			defer release()

			for i := 0; i < countFlag; i++ {
				msg, err := c.Pop()
				if vqueue.IsTransient(err) {
					c.Abandon()
					break
				}
				if err != nil {
					return err
				}
				if msg == nil {
					break
				}

				if err := printRecord(cmd, msg, jsonOutput); err != nil {
					return err
				}

				if noCommit {
					c.Abandon()
					break
				}
				if _, err := c.Commit(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&consumerFlag, "consumer", "", "Consumer (cursor) name")
	cmd.Flags().IntVarP(&countFlag, "count", "n", 1, "Maximum number of records to read")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Print the next record without committing it")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON lines")
	return cmd
}
