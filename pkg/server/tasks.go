package server

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/live"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/report"
	"github.com/nicktill/techboard/pkg/server/monitor"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/summary"
)

// Background task names, as reported by the health endpoint.
const (
	TaskLiveBroadcast = "live_broadcast"
	TaskBadgerGC      = "badger_gc"
)

const gcDiscardRatio = 0.5

// ReportRunner runs a named report.
type ReportRunner interface {
	Run(ctx context.Context, name string, params url.Values, opts report.RunOptions) (*summary.Payload, error)
}

// Broadcaster is the destination of live updates.
type Broadcaster interface {
	Broadcast(data interface{}) error
	HasClients() bool
}

var _ Broadcaster = (*live.Hub)(nil)

// LiveUpdate is the message pushed to websocket clients.
type LiveUpdate struct {
	Type      string                      `json:"type"`
	Timestamp int64                       `json:"timestamp"`
	Reports   map[string]*summary.Payload `json:"reports"`
	Errors    map[string]string           `json:"errors,omitempty"`
}

// BroadcastReports runs the given reports every interval while clients are
// connected and pushes the summaries to them. Failures back off exponentially
// in the logs so an outage of the store does not flood them.
func BroadcastReports(
	ctx context.Context,
	runner ReportRunner,
	hub Broadcaster,
	reports []string,
	interval time.Duration,
	timeout time.Duration,
	mon *monitor.TaskMonitor,
	logger *zap.Logger,
) {
	logger = logging.OrNop(logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var consecutiveErrors int
	var lastErrorTime time.Time
	const maxBackoff = 5 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !hub.HasClients() {
				continue
			}

			update := LiveUpdate{
				Type:      "report_update",
				Timestamp: time.Now().Unix(),
				Reports:   make(map[string]*summary.Payload, len(reports)),
			}
			var firstErr error
			for _, name := range reports {
				runCtx, cancel := context.WithTimeout(ctx, timeout)
				payload, err := runner.Run(runCtx, name, nil, report.RunOptions{})
				cancel()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					if update.Errors == nil {
						update.Errors = make(map[string]string)
					}
					update.Errors[name] = err.Error()
					continue
				}
				update.Reports[name] = payload
			}

			if firstErr != nil {
				consecutiveErrors++
				if mon != nil {
					mon.RecordFailure(firstErr)
				}
				now := time.Now()
				backoff := min(time.Duration(1<<uint(min(consecutiveErrors-1, 8)))*time.Second, maxBackoff)
				if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
					logger.Warn("live report refresh failed",
						zap.Int("consecutive_errors", consecutiveErrors),
						zap.Duration("backoff", backoff),
						zap.Error(firstErr))
					lastErrorTime = now
				}
			} else {
				if consecutiveErrors > 0 {
					logger.Info("live report refresh recovered", zap.Int("after_errors", consecutiveErrors))
					consecutiveErrors = 0
				}
				if mon != nil {
					mon.RecordSuccess()
				}
			}

			if len(update.Reports) == 0 && len(update.Errors) == 0 {
				continue
			}
			if err := hub.Broadcast(update); err != nil {
				logger.Warn("failed to broadcast live update", zap.Error(err))
			}
		}
	}
}

// GarbageCollector is implemented by stores with a value log to compact.
type GarbageCollector interface {
	RunGC(discardRatio float64) (bool, error)
}

// RunBadgerGC runs value log garbage collection every interval until ctx is
// cancelled. Stores without a value log are skipped.
func RunBadgerGC(ctx context.Context, store storage.Storage, interval time.Duration, mon *monitor.TaskMonitor, logger *zap.Logger) {
	logger = logging.OrNop(logger)
	gc, ok := store.(GarbageCollector)
	if !ok {
		logger.Info("store has no value log, skipping GC")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("badger GC scheduler started", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			reclaimed, err := gc.RunGC(gcDiscardRatio)
			if err != nil {
				if mon != nil {
					mon.RecordFailure(err)
				}
				logger.Warn("badger GC failed", zap.Error(err))
				continue
			}
			if mon != nil {
				mon.RecordSuccess()
			}
			logger.Info("badger GC completed",
				zap.Bool("reclaimed", reclaimed),
				zap.Duration("took", time.Since(start).Round(time.Millisecond)))
		case <-ctx.Done():
			logger.Info("stopping badger GC scheduler")
			return
		}
	}
}
