// Package progress renders provisioning feedback on stderr. stdout stays
// clean for the credential bundle.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// tick is the countdown refresh interval.
const tick = 100 * time.Millisecond

// Countdown renders a bar that fills over d, then returns. Used for the
// fixed role-propagation wait so the pause does not look like a hang.
// Returns early with ctx.Err() on cancellation.
func Countdown(ctx context.Context, d time.Duration, description string) error {
	return countdown(ctx, os.Stderr, d, description)
}

func countdown(ctx context.Context, w io.Writer, d time.Duration, description string) error {
	bar := progressbar.NewOptions64(int64(d/tick),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(tick),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = bar.Add64(1)
		}
	}
	_ = bar.Finish()
	return nil
}
