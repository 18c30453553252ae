package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fimon/internal/fim"
)

// PrometheusSink exposes scan results as counters. With a listen address it
// serves /metrics itself, so watch mode can be scraped without a separate
// exporter.
type PrometheusSink struct {
	scansTotal   prometheus.Counter
	filesChecked prometheus.Counter
	changesTotal *prometheus.CounterVec

	server *http.Server
}

var _ fim.NotificationSink = (*PrometheusSink)(nil)

// NewPrometheusSink creates the sink and registers its collectors.
// listenAddr may be empty when the caller serves the registry itself.
func NewPrometheusSink(reg prometheus.Registerer, listenAddr string) *PrometheusSink {
	s := &PrometheusSink{
		scansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fimon_scans_total",
			Help: "Total number of completed scans.",
		}),
		filesChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fimon_files_checked_total",
			Help: "Total number of files checked across all scans.",
		}),
		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fimon_changes_total",
				Help: "Total number of detected changes by kind.",
			},
			[]string{"kind"},
		),
	}
	s.Register(reg)

	if listenAddr != "" {
		gatherer, ok := reg.(prometheus.Gatherer)
		if !ok {
			gatherer = prometheus.DefaultGatherer
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		s.server = &http.Server{Addr: listenAddr, Handler: mux}
		go s.server.ListenAndServe()
	}

	return s
}

// Register registers the sink's collectors with reg.
func (s *PrometheusSink) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		s.scansTotal,
		s.filesChecked,
		s.changesTotal,
	)
}

func (s *PrometheusSink) Name() string {
	return "prometheus"
}

func (s *PrometheusSink) Notify(summary fim.NotifySummary) error {
	s.scansTotal.Inc()
	s.filesChecked.Add(float64(summary.TotalFiles))
	s.changesTotal.WithLabelValues("modified").Add(float64(summary.ModifiedCount))
	s.changesTotal.WithLabelValues("new").Add(float64(summary.NewCount))
	s.changesTotal.WithLabelValues("deleted").Add(float64(summary.DeletedCount))
	s.changesTotal.WithLabelValues("meta").Add(float64(summary.MetaChangedCount))
	s.changesTotal.WithLabelValues("permissions").Add(float64(summary.PermissionChangedCount))
	s.changesTotal.WithLabelValues("owner").Add(float64(summary.OwnerChangedCount))
	s.changesTotal.WithLabelValues("signature").Add(float64(summary.SignatureErrorCount))
	return nil
}

// Close shuts the metrics endpoint down, if one was started.
func (s *PrometheusSink) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
