// Package metrics provides Prometheus instrumentation for the trip chat
// service. It exposes counters for message and persistence throughput,
// gauges for presence, and a histogram for poll handling latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts chat messages processed, labeled by kind:
	// "sent", "edited", "deleted", or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"kind"})

	// ReactionsTotal counts reaction toggles, labeled "added" or "removed".
	ReactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripchat_reactions_total",
		Help: "Total number of reaction toggles",
	}, []string{"kind"})

	// SavesTotal counts full-document saves to disk.
	SavesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripchat_document_saves_total",
		Help: "Total number of full document saves",
	})

	// SaveFailures counts document writes that failed.
	SaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripchat_document_save_failures_total",
		Help: "Total number of failed document writes",
	})

	// BackupFailures counts backup copies that failed before a save.
	BackupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripchat_backup_failures_total",
		Help: "Total number of failed pre-save backups",
	})

	// OnlineUsers tracks the online participant count per trip.
	OnlineUsers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripchat_online_users",
		Help: "Participants currently inside the presence window",
	}, []string{"trip"})

	// PollLatency records chat poll handling latency in seconds.
	PollLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripchat_poll_latency_seconds",
		Help:    "Chat poll handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ReactionsTotal,
		SavesTotal,
		SaveFailures,
		BackupFailures,
		OnlineUsers,
		PollLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
