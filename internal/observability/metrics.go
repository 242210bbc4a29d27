package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the document review service.
// Metrics are organized by subsystem: triage, tracker, monitor, consumer,
// outbox, and labeling API calls. All collectors are registered via promauto
// with the default Prometheus registry.
//
// Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// PagesTriaged counts extraction pages evaluated against the threshold.
	PagesTriaged prometheus.Counter

	// PagesFlagged counts pages that produced a manifest entry.
	PagesFlagged prometheus.Counter

	// FieldsFlagged counts low-confidence fields routed to review.
	FieldsFlagged prometheus.Counter

	// ManifestsPublished counts manifest entries written to the review-task topic.
	ManifestsPublished prometheus.Counter

	// TriageFailures counts triage failures, labeled by reason.
	TriageFailures *prometheus.CounterVec

	// TriageDuration observes extraction-complete handling time in seconds.
	TriageDuration prometheus.Histogram

	// CompletionsReceived counts review completion events, labeled by source (kafka, http).
	CompletionsReceived *prometheus.CounterVec

	// CompletionDuplicates counts completion events for pages already recorded.
	CompletionDuplicates prometheus.Counter

	// JobsCompleted counts OPEN to COMPLETE transitions.
	JobsCompleted prometheus.Counter

	// StoreRetries counts tracking store operations retried after a transient failure.
	StoreRetries *prometheus.CounterVec

	// ReconcileRuns counts lifecycle monitor runs, labeled by observed status and action.
	ReconcileRuns *prometheus.CounterVec

	// JobCreateFailures counts failed labeling job creations.
	JobCreateFailures prometheus.Counter

	// MessagesConsumed counts consumed messages, labeled by topic and result.
	MessagesConsumed *prometheus.CounterVec

	// MessagesDeadLettered counts messages routed to a dead-letter topic, labeled by topic.
	MessagesDeadLettered *prometheus.CounterVec

	// OutboxPublished counts outbox events delivered to Kafka.
	OutboxPublished prometheus.Counter

	// OutboxFailed counts outbox publish attempts that failed, labeled by the
	// state the event was left in (retry, overdue, dead).
	OutboxFailed *prometheus.CounterVec

	// LabelingRequests counts labeling control API calls, labeled by operation and status class.
	LabelingRequests *prometheus.CounterVec

	// LabelingRequestDuration observes labeling control API latency in seconds.
	LabelingRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Triage
		PagesTriaged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "pages_total",
			Help:      "Total number of extraction pages evaluated",
		}),
		PagesFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "pages_flagged_total",
			Help:      "Total number of pages routed to human review",
		}),
		FieldsFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "fields_flagged_total",
			Help:      "Total number of low-confidence fields routed to human review",
		}),
		ManifestsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "manifests_published_total",
			Help:      "Total number of manifest entries published",
		}),
		TriageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "failures_total",
			Help:      "Total number of triage failures by reason",
		}, []string{"reason"}),
		TriageDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "duration_seconds",
			Help:      "Time spent handling one extraction-complete event",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		// Tracker
		CompletionsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "completions_received_total",
			Help:      "Total number of review completion events received",
		}, []string{"source"}),
		CompletionDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "completion_duplicates_total",
			Help:      "Total number of completion events for already recorded pages",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs whose pages were all reviewed",
		}),
		StoreRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "store_retries_total",
			Help:      "Total number of tracking store retries by operation",
		}, []string{"operation"}),

		// Monitor
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "reconcile_runs_total",
			Help:      "Total number of labeling job reconcile runs",
		}, []string{"observed_status", "action"}),
		JobCreateFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "job_create_failures_total",
			Help:      "Total number of failed labeling job creations",
		}),

		// Consumer
		MessagesConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Total number of consumed messages by topic and result",
		}, []string{"topic", "result"}),
		MessagesDeadLettered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "dead_lettered_total",
			Help:      "Total number of messages routed to a dead-letter topic",
		}, []string{"topic"}),

		// Outbox
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Total number of outbox events published",
		}),
		OutboxFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failed_total",
			Help:      "Total number of outbox publish failures",
		}, []string{"state"}),

		// Labeling API
		LabelingRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "labeling",
			Name:      "requests_total",
			Help:      "Total number of labeling control API requests",
		}, []string{"operation", "status"}),
		LabelingRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "labeling",
			Name:      "request_duration_seconds",
			Help:      "Labeling control API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// RecordPageTriaged records one evaluated page and the number of fields it flagged.
func (m *Metrics) RecordPageTriaged(flaggedFields int) {
	if m == nil {
		return
	}
	m.PagesTriaged.Inc()
	if flaggedFields > 0 {
		m.PagesFlagged.Inc()
		m.FieldsFlagged.Add(float64(flaggedFields))
	}
}

// RecordManifestPublished records a manifest entry written to the review-task topic.
func (m *Metrics) RecordManifestPublished() {
	if m == nil {
		return
	}
	m.ManifestsPublished.Inc()
}

// RecordTriageFailure records a triage failure.
func (m *Metrics) RecordTriageFailure(reason string) {
	if m == nil {
		return
	}
	m.TriageFailures.WithLabelValues(reason).Inc()
}

// RecordTriageDuration records the time spent on one extraction-complete event.
func (m *Metrics) RecordTriageDuration(seconds float64) {
	if m == nil {
		return
	}
	m.TriageDuration.Observe(seconds)
}

// RecordCompletionReceived records a review completion event.
func (m *Metrics) RecordCompletionReceived(source string, duplicate bool) {
	if m == nil {
		return
	}
	m.CompletionsReceived.WithLabelValues(source).Inc()
	if duplicate {
		m.CompletionDuplicates.Inc()
	}
}

// RecordJobCompleted records an OPEN to COMPLETE transition.
func (m *Metrics) RecordJobCompleted() {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
}

// RecordStoreRetry records a retried tracking store operation.
func (m *Metrics) RecordStoreRetry(operation string) {
	if m == nil {
		return
	}
	m.StoreRetries.WithLabelValues(operation).Inc()
}

// RecordReconcile records a lifecycle monitor run.
func (m *Metrics) RecordReconcile(observedStatus, action string) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(observedStatus, action).Inc()
}

// RecordJobCreateFailure records a failed labeling job creation.
func (m *Metrics) RecordJobCreateFailure() {
	if m == nil {
		return
	}
	m.JobCreateFailures.Inc()
}

// RecordMessageConsumed records the outcome of handling one message.
func (m *Metrics) RecordMessageConsumed(topic, result string) {
	if m == nil {
		return
	}
	m.MessagesConsumed.WithLabelValues(topic, result).Inc()
}

// RecordDeadLettered records a message routed to a dead-letter topic.
func (m *Metrics) RecordDeadLettered(topic string) {
	if m == nil {
		return
	}
	m.MessagesDeadLettered.WithLabelValues(topic).Inc()
}

// RecordOutboxPublished records delivered outbox events.
func (m *Metrics) RecordOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

// Outbox failure states.
const (
	OutboxStateRetry   = "retry"
	OutboxStateOverdue = "overdue"
	OutboxStateDead    = "dead"
)

// RecordOutboxFailed records a failed outbox publish attempt and the state
// the event was left in. Overdue events are past their retry budget but are
// still being retried; alert on them.
func (m *Metrics) RecordOutboxFailed(state string) {
	if m == nil {
		return
	}
	m.OutboxFailed.WithLabelValues(state).Inc()
}

// RecordLabelingRequest records a labeling control API call.
func (m *Metrics) RecordLabelingRequest(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.LabelingRequests.WithLabelValues(operation, status).Inc()
	m.LabelingRequestDuration.WithLabelValues(operation).Observe(seconds)
}
