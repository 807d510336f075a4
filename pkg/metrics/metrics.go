// Package metrics records operational metrics from the reporting pipeline.
//
// Components depend on the Recorder interface only. Nop is the default so
// instrumentation is always safe to call; Prometheus is the production
// implementation and is exposed on /metrics.
package metrics

import "time"

// Recorder receives pipeline events.
type Recorder interface {
	// BatchFetched is called once per range query with the rows it returned.
	BatchFetched(rows int)
	// FetchFinished is called when a paginated fetch ends without error.
	FetchFinished(partial bool)
	// CountFailed is called when an authoritative count could not be obtained.
	CountFailed(report, dimension string)
	// Discrepancy records authoritative minus aggregated for a dimension.
	Discrepancy(report, dimension string, value int)
	// ReportFinished records the outcome and latency of one report run.
	ReportFinished(report, status string, d time.Duration)
}

// Nop discards every event.
type Nop struct{}

func (Nop) BatchFetched(int)                             {}
func (Nop) FetchFinished(bool)                           {}
func (Nop) CountFailed(string, string)                   {}
func (Nop) Discrepancy(string, string, int)              {}
func (Nop) ReportFinished(string, string, time.Duration) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Status returns the status label for a report outcome.
func Status(err error, partial bool) string {
	switch {
	case err != nil:
		return "error"
	case partial:
		return "partial"
	default:
		return "ok"
	}
}
