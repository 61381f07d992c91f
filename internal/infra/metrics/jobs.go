package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsSubmittedTotal, jobsProcessedTotal, jobsDedupReusedTotal, watchdogActionsTotal)
}

var jobsSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "preview_jobs_submitted_total",
		Help: "Total number of submissions accepted, labeled by decision.",
	},
	[]string{"decision"}, // 'new', 'reused'
)

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "preview_jobs_processed_total",
		Help: "Total number of preview jobs finished, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var jobsDedupReusedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "preview_dedup_reused_total",
		Help: "Submissions answered with an existing job id.",
	},
)

var watchdogActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "preview_watchdog_actions_total",
		Help: "Stuck jobs handled by the watchdog, labeled by action.",
	},
	[]string{"action"}, // 'requeued', 'failed'
)

func IncJobSubmitted(decision string) {
	jobsSubmittedTotal.WithLabelValues(norm(decision)).Inc()
	if decision == "reused" {
		jobsDedupReusedTotal.Inc()
	}
}

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func IncWatchdogAction(action string) {
	watchdogActionsTotal.WithLabelValues(norm(action)).Inc()
}
