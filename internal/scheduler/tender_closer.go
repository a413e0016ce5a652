package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// TenderCloser closes tenders whose closing date has passed.
type TenderCloser interface {
	CloseExpired(ctx context.Context) (int, error)
}

const runTimeout = 2 * time.Minute

// closeExpiredJob runs one sweep. Errors are logged; the next tick retries.
func closeExpiredJob(closer TenderCloser) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		n, err := closer.CloseExpired(ctx)
		if err != nil {
			log.Printf("[TENDER-CLOSER] sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[TENDER-CLOSER] closed %d expired tender(s)", n)
		}
	}
}

// StartTenderCloser schedules the sweep on spec (standard five-field cron syntax). Stop the
// returned cron on shutdown.
func StartTenderCloser(spec string, closer TenderCloser) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, closeExpiredJob(closer)); err != nil {
		return nil, fmt.Errorf("invalid tender auto-close schedule %q: %w", spec, err)
	}
	c.Start()
	log.Printf("[TENDER-CLOSER] started schedule=%q", spec)
	return c, nil
}
