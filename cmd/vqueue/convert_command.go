package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "convert <file>",
		Short:       "Convert a binary individual to JSON",
		Long:        `Decode a msgpack-encoded individual from a file ("-" reads stdin) and print it as JSON.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			out, err := vqueue.ConvertIndividualToJSON(raw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}
