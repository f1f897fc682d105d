package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// AnalyzerStats provides the collector access to pipeline state.
type AnalyzerStats interface {
	InFlight() int
}

// LibraryStats provides the collector access to the recording library.
type LibraryStats interface {
	Totals(ctx context.Context) (count int, bytes int64, err error)
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool     *pgxpool.Pool
	analyzer AnalyzerStats
	library  LibraryStats

	// Descriptors for scrape-time gauges.
	analysesInFlight *prometheus.Desc
	recordings       *prometheus.Desc
	recordingBytes   *prometheus.Desc
	dbTotalConns     *prometheus.Desc
	dbAcquiredConns  *prometheus.Desc
	dbIdleConns      *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; the matching gauges then report 0.
func NewCollector(pool *pgxpool.Pool, analyzer AnalyzerStats, library LibraryStats) *Collector {
	return &Collector{
		pool:     pool,
		analyzer: analyzer,
		library:  library,
		analysesInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "analyses_in_flight"),
			"Analyses currently waiting on the provider.",
			nil, nil,
		),
		recordings: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "library", "recordings"),
			"Recordings in the library.",
			nil, nil,
		),
		recordingBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "library", "bytes"),
			"Total size of stored recordings in bytes.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.analysesInFlight
	ch <- c.recordings
	ch <- c.recordingBytes
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var inFlight float64
	if c.analyzer != nil {
		inFlight = float64(c.analyzer.InFlight())
	}
	ch <- prometheus.MustNewConstMetric(c.analysesInFlight, prometheus.GaugeValue, inFlight)

	// Library totals; a failed read reports zeros rather than failing the scrape.
	var count, size float64
	if c.library != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		n, b, err := c.library.Totals(ctx)
		cancel()
		if err == nil {
			count, size = float64(n), float64(b)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.recordings, prometheus.GaugeValue, count)
	ch <- prometheus.MustNewConstMetric(c.recordingBytes, prometheus.GaugeValue, size)

	// Database pool stats
	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
