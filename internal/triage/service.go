package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/threshold"
)

// PageRegistrar records how many pages of a job were sent for review.
type PageRegistrar interface {
	RegisterExpectedPages(ctx context.Context, jobID, documentID string, total int) error
}

// Config holds the triage service settings.
type Config struct {
	// ExtractionPrefix is the prefix under which extraction output is written.
	ExtractionPrefix string
	// ReviewTaskTopic receives manifest entries.
	ReviewTaskTopic string
	// HandlerTimeout is reported in delivery timeout errors.
	HandlerTimeout time.Duration
}

// Service handles extraction-complete notifications.
type Service struct {
	thresholds threshold.Source
	store      objectstore.Store
	registrar  PageRegistrar
	publisher  messaging.Publisher
	cfg        Config
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewService creates a new triage Service.
func NewService(
	thresholds threshold.Source,
	store objectstore.Store,
	registrar PageRegistrar,
	publisher messaging.Publisher,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		thresholds: thresholds,
		store:      store,
		registrar:  registrar,
		publisher:  publisher,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With().Str("component", "triage").Logger(),
	}
}

// HandleMessage decodes an extraction-complete notification and triages it.
func (s *Service) HandleMessage(ctx context.Context, msg messaging.Message) error {
	var event domain.ExtractionCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.metrics.RecordTriageFailure("decode")
		return domain.NewMalformedInputError("extraction event", "invalid JSON", err)
	}
	_, err := s.OnExtractionComplete(ctx, event)
	return err
}

// OnExtractionComplete triages every page of a finished extraction job and
// publishes one manifest entry per page that needs review. Each flagged page
// of the source document is copied next to its result artifact. The number
// of published pages is registered with the completion tracker before
// anything is published.
func (s *Service) OnExtractionComplete(ctx context.Context, event domain.ExtractionCompletedEvent) ([]domain.ManifestEntry, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordTriageDuration(time.Since(start).Seconds())
	}()

	if err := event.Validate(); err != nil {
		s.metrics.RecordTriageFailure("invalid_event")
		return nil, err
	}

	logger := observability.FromContext(ctx, s.logger).With().Str("job_id", event.JobID).Str("status", event.Status).Logger()
	if event.Status != domain.ExtractionStatusSucceeded {
		logger.Info().Msg("extraction job did not succeed, skipping")
		return nil, nil
	}

	cutoff, err := s.thresholds.Current(ctx)
	if err != nil {
		s.metrics.RecordTriageFailure("threshold")
		return nil, fmt.Errorf("failed to read confidence threshold: %w", err)
	}

	prefix := s.jobPrefix(event.JobID)
	outputs, err := s.loadOutputs(ctx, prefix)
	if err != nil {
		s.metrics.RecordTriageFailure("load")
		return nil, s.wrap(ctx, err)
	}

	documentID := event.DocumentLocation.ObjectKey
	sourceRef := event.DocumentLocation.SourceRef()
	pages := SplitPages(outputs)
	meta := outputs[0]
	source := newSourceDocument(s.store, event.DocumentLocation)
	ext := event.DocumentLocation.FileExtension()

	entries := make([]domain.ManifestEntry, 0, len(pages))
	for _, page := range pages {
		artifact := meta
		artifact.Blocks = page.Blocks
		if err := s.store.PutJSON(ctx, s.artifactLocation(prefix, page.Number), artifact); err != nil {
			s.metrics.RecordTriageFailure("artifact")
			return nil, s.wrap(ctx, domain.NewStoreUnavailableError(fmt.Sprintf("write_page_%d_result", page.Number), err))
		}

		entry, err := Triage(page.Result(event.JobID, documentID, sourceRef), cutoff)
		if err != nil {
			s.metrics.RecordTriageFailure("triage")
			return nil, err
		}
		if entry == nil {
			s.metrics.RecordPageTriaged(0)
			continue
		}
		entry.PagePrefix = s.pagePrefix(prefix, page.Number).String()
		if err := s.copySourcePage(ctx, source, prefix, page.Number, ext); err != nil {
			s.metrics.RecordTriageFailure("page_extract")
			return nil, s.wrap(ctx, err)
		}
		s.metrics.RecordPageTriaged(len(entry.LowConfidenceFields))
		pageLogger := observability.WithPageContext(logger, entry.PageID, page.Number)
		pageLogger.Debug().
			Int("flagged_fields", len(entry.LowConfidenceFields)).
			Msg("page routed to review")
		entries = append(entries, *entry)
	}

	if len(entries) == 0 {
		logger.Info().Int("pages", len(pages)).Msg("no low confidence fields found")
		return nil, nil
	}

	if err := s.registrar.RegisterExpectedPages(ctx, event.JobID, documentID, len(entries)); err != nil {
		return nil, s.wrap(ctx, fmt.Errorf("failed to register expected pages: %w", err))
	}

	msgs := make([]messaging.Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := messaging.NewJSONMessage(s.cfg.ReviewTaskTopic, entry.JobID, entry, map[string]string{
			"event_type": domain.EventTypeReviewTaskCreated,
			"page_id":    entry.PageID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest entry %s: %w", entry.PageID, err)
		}
		msgs = append(msgs, msg)
	}
	if err := s.publisher.Publish(ctx, msgs...); err != nil {
		s.metrics.RecordTriageFailure("publish")
		return nil, s.wrap(ctx, domain.NewStoreUnavailableError("publish_review_tasks", err))
	}
	for range entries {
		s.metrics.RecordManifestPublished()
	}

	logger.Info().
		Int("pages", len(pages)).
		Int("review_pages", len(entries)).
		Float64("threshold", cutoff).
		Msg("review tasks published")

	return entries, nil
}

// loadOutputs reads the numbered result objects under prefix until one is
// missing.
func (s *Service) loadOutputs(ctx context.Context, prefix string) ([]domain.ExtractionOutput, error) {
	var outputs []domain.ExtractionOutput
	for n := 1; ; n++ {
		loc := objectstore.Location{Key: prefix + "/" + strconv.Itoa(n)}

		var out domain.ExtractionOutput
		err := s.store.GetJSON(ctx, loc, &out)
		if errors.Is(err, domain.ErrNotFound) {
			if n == 1 {
				return nil, domain.NewMalformedInputError("extraction output", "no result objects under "+prefix, err)
			}
			return outputs, nil
		}
		if errors.Is(err, domain.ErrMalformedInput) {
			return nil, err
		}
		if err != nil {
			return nil, domain.NewStoreUnavailableError("load_extraction_output", err)
		}
		outputs = append(outputs, out)
	}
}

func (s *Service) jobPrefix(jobID string) string {
	p := strings.Trim(s.cfg.ExtractionPrefix, "/")
	if p == "" {
		return jobID
	}
	return p + "/" + jobID
}

func (s *Service) pagePrefix(prefix string, page int) objectstore.Location {
	return objectstore.Location{Bucket: s.store.Bucket(), Key: fmt.Sprintf("%s/pages/%d", prefix, page)}
}

// copySourcePage writes page n of the source document to
// {prefix}/pages/{n}/page/{n}{ext}, where the review UI reads it.
func (s *Service) copySourcePage(ctx context.Context, source *sourceDocument, prefix string, n int, ext string) error {
	data, contentType, err := source.Page(ctx, n)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.pageFileLocation(prefix, n, ext), data, contentType); err != nil {
		return domain.NewStoreUnavailableError(fmt.Sprintf("write_page_%d_source", n), err)
	}
	return nil
}

func (s *Service) pageFileLocation(prefix string, page int, ext string) objectstore.Location {
	return objectstore.Location{Key: fmt.Sprintf("%s/pages/%d/page/%d%s", prefix, page, page, ext)}
}

func (s *Service) artifactLocation(prefix string, page int) objectstore.Location {
	return objectstore.Location{Key: fmt.Sprintf("%s/pages/%d/extraction-result/%d.json", prefix, page, page)}
}

func (s *Service) wrap(ctx context.Context, err error) error {
	return domain.WrapDeadline(ctx, err, "triage", s.cfg.HandlerTimeout)
}
