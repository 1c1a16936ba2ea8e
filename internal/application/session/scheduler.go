package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the part of Service the background sweep needs.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// StartSweeper runs SweepExpired on the given cron schedule until the
// returned stop function is called. Overlapping runs are skipped.
func StartSweeper(schedule string, svc Sweeper, timeout time.Duration) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := svc.SweepExpired(ctx)
		if err != nil {
			slog.Warn("scheduled session sweep failed", "removed", n, "err", err)
			return
		}
		slog.Info("scheduled session sweep", "removed", n)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
