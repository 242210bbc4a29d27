// Package observability provides logging, metrics, and context helpers for
// the document review service.
//
// # Logging
//
// Create a logger from configuration and scope it to a component:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = logger.With().Str("component", "tracker").Logger()
//
// Attach job and page fields while processing an event:
//
//	log := observability.WithJobContext(logger, jobID, documentID)
//	log = observability.WithPageContext(log, pageID, pageNumber)
//
// The Temporal SDK logs through NewTemporalLogger.
//
// # Metrics
//
// NewMetrics registers every collector with the default registry, so call it
// once per process:
//
//	metrics := observability.NewMetrics("document_review")
//	metrics.RecordPageTriaged(len(entry.LowConfidenceFields))
//
// All Record methods accept a nil receiver, which keeps unit tests free of
// global registration.
//
// # Standard Fields
//
//   - job_id: extraction job identifier, also the tracking record key
//   - document_id: source document object key
//   - page_id: page identifier within a job
//   - topic, partition, offset: Kafka message coordinates
//   - correlation_id: cross-service correlation identifier
//   - WorkflowID, RunID: added by the Temporal SDK to workflow and activity logs
package observability
