package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pawhaven/internal/service"
)

type sweepRunner interface {
	Run(ctx context.Context, now time.Time) (*service.SweepReport, error)
}

// BackgroundTasks runs the expiration sweep in-process when an interval is configured.
type BackgroundTasks struct {
	sweeper  sweepRunner
	interval time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

func NewBackgroundTasks(sweeper sweepRunner, interval time.Duration, log *slog.Logger) *BackgroundTasks {
	return &BackgroundTasks{sweeper: sweeper, interval: interval, log: log.With("component", "background")}
}

// StartAll starts the loops and returns. A zero interval starts nothing.
func (bt *BackgroundTasks) StartAll(ctx context.Context) {
	if bt.interval <= 0 {
		bt.log.Info("in-process sweep disabled")
		return
	}
	bt.wg.Add(1)
	go func() {
		defer bt.wg.Done()
		bt.startExpirationSweep(ctx)
	}()
}

// Wait blocks until every loop has returned after ctx is cancelled.
func (bt *BackgroundTasks) Wait() {
	bt.wg.Wait()
}

func (bt *BackgroundTasks) startExpirationSweep(ctx context.Context) {
	ticker := time.NewTicker(bt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := bt.sweeper.Run(ctx, time.Now().UTC())
			if err != nil {
				bt.log.Error("scheduled sweep failed", "error", err)
				continue
			}
			bt.log.Info("scheduled sweep", "processed", report.Processed, "skipped", report.Skipped, "errors", report.Errors)
		}
	}
}
