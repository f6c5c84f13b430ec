package poll

import (
	"context"
	"fmt"

	"github.com/troupe-io/troupe"
)

// Run drives the world from OS readiness: it alternates between one bounded
// poll (latching events and waking signals) and one full run-to-idle pass, so
// every affected actor processes its pending I/O in one coherent batch before
// the loop blocks again.
//
// Run returns when ctx is cancelled, or on a failing poll call.
func Run(ctx context.Context, w *troupe.World, r *Registry) error {
	// Process messages raised during initialization before the first poll.
	if err := w.RunUntilIdle(); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.PollOnce(); err != nil {
			return fmt.Errorf("event loop: %w", err)
		}

		if err := w.RunUntilIdle(); err != nil {
			return fmt.Errorf("event loop: %w", err)
		}
	}
}
