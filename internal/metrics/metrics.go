package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_http_requests_total",
			Help: "Total number of HTTP requests received by the API.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	AssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_assignments_total",
			Help: "Assignment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	CommitConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmr_assignment_commit_conflicts_total",
			Help: "Candidates rejected at commit time because their capacity changed after scoring.",
		},
	)

	ReassignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_reassignments_total",
			Help: "Reassignment attempts by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	PriorityChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_priority_changes_total",
			Help: "Mission priority changes by source and target level.",
		},
		[]string{"from", "to"},
	)

	SignalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_signal_failures_total",
			Help: "External signal lookups that failed and were treated as absent.",
		},
		[]string{"signal"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmr_notifications_total",
			Help: "Notification deliveries by sender and result.",
		},
		[]string{"sender", "result"},
	)

	MonitorSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pmr_monitor_sweep_duration_seconds",
			Help:    "Duration of a full monitor sweep over active missions.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	MonitorMissionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pmr_monitor_mission_errors_total",
			Help: "Missions that failed during a monitor sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AssignmentsTotal,
		CommitConflictsTotal,
		ReassignmentsTotal,
		PriorityChangesTotal,
		SignalFailuresTotal,
		NotificationsTotal,
		MonitorSweepDuration,
		MonitorMissionErrorsTotal,
	)
}
