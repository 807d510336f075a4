package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is a Recorder backed by client_golang collectors on a private
// registry.
type Prometheus struct {
	reg *prometheus.Registry

	batches        prometheus.Counter
	rows           prometheus.Counter
	fetches        *prometheus.CounterVec
	countFailures  *prometheus.CounterVec
	discrepancy    *prometheus.GaugeVec
	reportDuration *prometheus.HistogramVec
}

// NewPrometheus registers the techboard collectors plus the Go and process
// collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()

	p := &Prometheus{
		reg: reg,
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techboard_fetch_batches_total",
			Help: "Range queries issued by the paginated fetcher.",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techboard_rows_fetched_total",
			Help: "Rows returned by range queries.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techboard_fetches_total",
			Help: "Completed paginated fetches, partitioned by whether the safety ceiling was hit.",
		}, []string{"partial"}),
		countFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techboard_count_failures_total",
			Help: "Authoritative count queries that failed and fell back to aggregated totals.",
		}, []string{"report", "dimension"}),
		discrepancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "techboard_reconciliation_discrepancy",
			Help: "Authoritative minus aggregated count from the most recent run.",
		}, []string{"report", "dimension"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "techboard_report_duration_seconds",
			Help:    "Report pipeline latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"report", "status"}),
	}

	reg.MustRegister(
		p.batches, p.rows, p.fetches, p.countFailures, p.discrepancy, p.reportDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Prometheus) BatchFetched(rows int) {
	p.batches.Inc()
	p.rows.Add(float64(rows))
}

func (p *Prometheus) FetchFinished(partial bool) {
	p.fetches.WithLabelValues(strconv.FormatBool(partial)).Inc()
}

func (p *Prometheus) CountFailed(report, dimension string) {
	p.countFailures.WithLabelValues(report, dimension).Inc()
}

func (p *Prometheus) Discrepancy(report, dimension string, value int) {
	p.discrepancy.WithLabelValues(report, dimension).Set(float64(value))
}

func (p *Prometheus) ReportFinished(report, status string, d time.Duration) {
	p.reportDuration.WithLabelValues(report, status).Observe(d.Seconds())
}
