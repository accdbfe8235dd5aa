package metrics

import (
	"context"
	"time"

	"upwrdfin/logger"
)

// FeedStats is a point-in-time view of the live feed session.
type FeedStats struct {
	State         string
	Live          bool
	StreamOpen    bool
	Instruments   int
	Indices       int
	FramesApplied int64
	FramesIgnored int64
	PullsDropped  int64
	SinceUpdate   time.Duration
}

// ReportFeed emits the session gauges.
func ReportFeed(log *logger.Log, stats FeedStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	fields := logger.Fields{"state": stats.State}

	EmitMetric(log, "feed", "instruments_held", stats.Instruments, "gauge", fields)
	EmitMetric(log, "feed", "indices_held", stats.Indices, "gauge", fields)
	EmitMetric(log, "feed", "live", stats.Live, "gauge", fields)
	EmitMetric(log, "feed", "stream_open", stats.StreamOpen, "gauge", fields)
	EmitMetric(log, "feed", "frames_applied", stats.FramesApplied, "counter", nil)
	EmitMetric(log, "feed", "frames_ignored", stats.FramesIgnored, "counter", nil)
	EmitMetric(log, "feed", "pulls_discarded", stats.PullsDropped, "counter", nil)
	if stats.SinceUpdate > 0 {
		EmitMetric(log, "feed", "staleness_seconds", stats.SinceUpdate.Seconds(), "gauge", logger.Fields{"unit": "seconds"})
	}

	SetLive(stats.Live)
}

// StartFeedReporter calls source every interval and reports the result until
// ctx is cancelled. A non-positive interval means one minute.
func StartFeedReporter(ctx context.Context, log *logger.Log, source func() FeedStats, interval time.Duration) {
	if source == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ReportFeed(log, source())
			}
		}
	}()
}
