package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func newPushCommand(ctx *commandContext) *cobra.Command {
	var typeFlag string
	var fileFlag string

	cmd := &cobra.Command{
		Use:   "push <queue> [payload...]",
		Short: "Append records to a queue",
		Long: `Append records to a queue, creating it when missing.

Each payload argument becomes one record. With --file the file content is
pushed as a single record ("-" reads stdin). Positions are printed one per line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgType, err := format.ParseMsgType(typeFlag)
			if err != nil {
				return fmt.Errorf("--type: %w", err)
			}

			bodies, err := pushBodies(cmd, args[1:], strings.TrimSpace(fileFlag))
			if err != nil {
				return err
			}

			q, err := ctx.openQueue(args[0], vqueue.ModeDefault, nil)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			var positions []uint64
			if len(bodies) == 1 {
				pos, err := q.Push(bodies[0], msgType)
				if err != nil {
					return err
				}
				positions = []uint64{pos}
			} else {
				positions, err = q.PushBatch(bodies, msgType)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, pos := range positions {
				fmt.Fprintln(out, pos)
			}
			return q.Close()
		},
	}

	cmd.Flags().StringVarP(&typeFlag, "type", "t", "S", "Record type: S (string) or O (object)")
	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Push the content of a file as one record")
	return cmd
}

func pushBodies(cmd *cobra.Command, payloads []string, file string) ([][]byte, error) {
	if file != "" {
		if len(payloads) > 0 {
			return nil, fmt.Errorf("payload arguments cannot be combined with --file")
		}
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return [][]byte{data}, nil
	}

	if len(payloads) == 0 {
		return nil, fmt.Errorf("no payload given (pass arguments or --file)")
	}
	bodies := make([][]byte, len(payloads))
	for i, p := range payloads {
		bodies[i] = []byte(p)
	}
	return bodies, nil
}
