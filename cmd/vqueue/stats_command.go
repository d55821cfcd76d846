package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/queue"
	"github.com/vnykmshr/vqueue/internal/segment"
	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

type consumerStats struct {
	Name      string `json:"name"`
	Position  uint64 `json:"position"`
	Committed uint64 `json:"committed"`
	Backlog   uint64 `json:"backlog"`
	Status    string `json:"status"`
}

type statsView struct {
	Queue     *vqueue.QueueStats `json:"queue"`
	Consumers []consumerStats    `json:"consumers"`
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var consumers []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats <queue>",
		Short: "Show queue statistics and consumer backlogs",
		Long: `Show queue statistics and, for each consumer, its committed position and
the number of complete records it has not committed yet. Without --consumer
every cursor of the queue is listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.openQueue(args[0], vqueue.ModeRead, nil)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			store, err := ctx.openCursorStore()
			if err != nil {
				return fmt.Errorf("open cursor store: %w", err)
			}
			defer func() { _ = store.Close() }()

			stats := q.Stats()
			if len(consumers) == 0 {
				if consumers, err = store.List(args[0]); err != nil {
					return fmt.Errorf("list consumers: %w", err)
				}
			}

			base, err := ctx.basePath()
			if err != nil {
				return err
			}
			cstats, err := collectConsumerStats(base, stats, store, consumers)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, statsView{Queue: stats, Consumers: cstats})
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Queue", "Value"}, queueRows(stats), []columnAlignment{alignLeft, alignRight}, colorize))
			if len(cstats) > 0 {
				rows := make([][]string, 0, len(cstats))
				for _, s := range cstats {
					rows = append(rows, []string{
						s.Name,
						strconv.FormatUint(s.Position, 10),
						strconv.FormatUint(s.Committed, 10),
						strconv.FormatUint(s.Backlog, 10),
						s.Status,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Consumer", "Position", "Committed", "Backlog", "Status"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
					colorize,
				))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&consumers, "consumer", nil, "Consumer to report (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print statistics as JSON")
	return cmd
}

func queueRows(s *vqueue.QueueStats) [][]string {
	rows := [][]string{
		{"Name", s.Name},
		{"Queue ID", s.QueueID},
		{"Records", strconv.FormatUint(s.CountPushed, 10)},
		{"End position", strconv.FormatUint(s.EndPosition, 10)},
		{"Checkpoint", fmt.Sprintf("%d records / %d bytes", s.CheckpointCount, s.CheckpointEnd)},
		{"Segments", strconv.Itoa(s.SegmentCount)},
	}
	if !s.CreatedAt.IsZero() {
		rows = append(rows, []string{"Created", s.CreatedAt.Local().Format(time.RFC3339)})
	}
	return rows
}

// collectConsumerStats reads cursor states straight from the store, so
// consumers that are currently running are reported too.
func collectConsumerStats(basePath string, stats *vqueue.QueueStats, store cursor.Store, names []string) ([]consumerStats, error) {
	id, err := queue.ParseQueueID(stats.QueueID)
	if err != nil {
		return nil, err
	}
	log := segment.NewLogReader(queue.Dir(basePath, stats.Name), id)
	defer func() { _ = log.Close() }()

	out := make([]consumerStats, 0, len(names))
	for _, name := range names {
		s := consumerStats{Name: name}
		state, err := store.Load(cursor.Key{Queue: stats.Name, Consumer: name})
		switch {
		case errors.Is(err, cursor.ErrNotFound):
			s.Status = "missing"
			out = append(out, s)
			continue
		case err != nil:
			return nil, fmt.Errorf("load cursor %s: %w", name, err)
		}

		s.Position = state.Position
		s.Committed = state.Committed
		switch {
		case state.QueueID != stats.QueueID:
			s.Status = "stale queue id"
		case state.Position > stats.EndPosition:
			s.Status = "ahead of log"
		default:
			res, err := log.Scan(state.Position, false, nil)
			if err != nil {
				s.Status = "unreadable"
			} else {
				s.Backlog = res.Count
				s.Status = "ok"
			}
		}
		out = append(out, s)
	}
	return out, nil
}
