// Package consumer provides streaming API for continuous record processing.
// This file contains the streaming functionality and its backoff helper.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/vnykmshr/vqueue/internal/format"
)

// Record is one record delivered by Stream.
type Record struct {
	// Position is the logical position of the record
	Position uint64

	// Type is the payload kind
	Type format.MsgType

	// Body is the record payload. It is only valid during the handler call.
	Body []byte
}

// StreamHandler is called for each record in the stream.
// Return an error to stop streaming; the record is then not committed.
type StreamHandler func(*Record) error

// Stream reads records in order, calling handler for each one and
// committing it after the handler returns nil.
//
// When no record is available Stream waits, starting at PollInterval and
// backing off exponentially to MaxPollInterval, and resets to the short
// wait as soon as a record arrives. A record whose body is still being
// written is retried the same way.
//
// Context cancellation stops streaming and returns the context error.
// Handler errors and fatal read or commit errors stop streaming and are
// returned.
//
// Example usage:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//
//	err := c.Stream(ctx, func(rec *consumer.Record) error {
//	    fmt.Printf("Received: %s\n", rec.Body)
//	    return nil
//	})
func (c *Consumer) Stream(ctx context.Context, handler StreamHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	var buf []byte
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := c.PopHeader()
		if err != nil {
			return fmt.Errorf("stream read error: %w", err)
		}
		if !ok {
			if err := c.wait(ctx, idle); err != nil {
				return err
			}
			idle++
			continue
		}

		h, _ := c.Header()
		if cap(buf) < int(h.Length) {
			buf = make([]byte, h.Length)
		}
		n, err := c.PopBody(buf[:h.Length])
		if err != nil {
			if IsTransient(err) {
				if err := c.wait(ctx, idle); err != nil {
					return err
				}
				idle++
				continue
			}
			return fmt.Errorf("stream read error: %w", err)
		}
		idle = 0

		rec := &Record{Position: c.Position(), Type: h.Type, Body: buf[:n]}
		if err := handler(rec); err != nil {
			c.Abandon()
			return fmt.Errorf("handler error: %w", err)
		}

		if _, err := c.Commit(); err != nil {
			return fmt.Errorf("stream commit error: %w", err)
		}
	}
}

// wait sleeps for the backoff of the given idle round or until ctx is done.
func (c *Consumer) wait(ctx context.Context, idle int) error {
	timer := time.NewTimer(CalculateBackoff(idle, c.opts.PollInterval, c.opts.MaxPollInterval))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalculateBackoff calculates exponential backoff duration based on retry count.
// The backoff duration increases exponentially: base * 2^retryCount, capped at maxBackoff.
//
// Returns the calculated backoff duration, always between baseDelay and maxBackoff.
func CalculateBackoff(retryCount int, baseDelay, maxBackoff time.Duration) time.Duration {
	if retryCount <= 0 || baseDelay <= 0 {
		return baseDelay
	}
	if retryCount > 62 {
		retryCount = 62
	}

	// Calculate exponential backoff: baseDelay * 2^retryCount
	multiplier := int64(1) << uint(retryCount)

	// Prevent overflow by checking if multiplier would be too large
	maxMultiplier := int64(maxBackoff / baseDelay)
	if multiplier > maxMultiplier {
		multiplier = maxMultiplier
	}

	backoff := time.Duration(multiplier) * baseDelay

	if backoff > maxBackoff {
		return maxBackoff
	}
	if backoff < baseDelay {
		return baseDelay
	}

	return backoff
}
