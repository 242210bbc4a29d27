package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/formatter"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/tracker"
)

const maxRequestBody = 4 << 20

// preHumanTask formats one manifest entry into the task the review UI renders.
func (s *Server) preHumanTask(w http.ResponseWriter, r *http.Request) {
	var req preHumanTaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DataObject == nil {
		writeError(w, http.StatusBadRequest, "dataObject is required")
		return
	}

	task, err := formatter.Format(*req.DataObject, s.deps.Formatter)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("job_id", req.DataObject.JobID).
			Str("page_id", req.DataObject.PageID).
			Msg("rejected manifest entry")
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, preHumanTaskResponse{TaskInput: task})
}

// consolidate resolves the reviewer answer referenced by the consolidation
// request, records the page as reviewed and removes the per-page artifact.
func (s *Server) consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	event, pageArtifact, err := s.resolveCompletion(ctx, req.Payload.S3URI)
	if err != nil {
		s.logger.Error().Err(err).Str("request_uri", req.Payload.S3URI).Msg("failed to resolve consolidation request")
		writeError(w, statusForError(err), err.Error())
		return
	}

	ctx = observability.WithJobID(ctx, event.JobID)
	logger := observability.WithJobContext(s.logger, event.JobID, event.DocumentID).
		With().Str("page_id", event.PageID).Logger()

	outcome, err := s.deps.Tracker.RecordCompletionFrom(ctx, tracker.SourceHTTP, event, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record page completion")
		writeError(w, statusForError(err), err.Error())
		return
	}

	if pageArtifact.Key != "" {
		if err := s.deps.Store.Delete(ctx, pageArtifact); err != nil {
			logger.Warn().Err(err).Str("object", pageArtifact.String()).Msg("failed to delete page artifact")
		} else {
			logger.Debug().Str("object", pageArtifact.String()).Msg("page artifact deleted")
		}
	}

	writeJSON(w, http.StatusOK, consolidationResponse{
		JobID:   event.JobID,
		PageID:  event.PageID,
		Outcome: outcome,
	})
}

// resolveCompletion reads the consolidation request document and the answer
// file it points at, returning the completion event and the location of the
// page artifact to remove.
func (s *Server) resolveCompletion(ctx context.Context, requestURI string) (domain.ReviewCompletionEvent, objectstore.Location, error) {
	var none objectstore.Location

	reqLoc, err := objectstore.ParseURI(requestURI)
	if err != nil {
		return domain.ReviewCompletionEvent{}, none, err
	}

	var entries []consolidationEntry
	if err := s.deps.Store.GetJSON(ctx, reqLoc, &entries); err != nil {
		return domain.ReviewCompletionEvent{}, none, err
	}
	if len(entries) == 0 || len(entries[0].Annotations) == 0 {
		return domain.ReviewCompletionEvent{}, none, domain.NewMalformedInputError("consolidation request", "no annotations", nil)
	}

	var content annotationContent
	raw := entries[0].Annotations[0].AnnotationData.Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return domain.ReviewCompletionEvent{}, none, domain.NewMalformedInputError("annotation content", "invalid JSON", err)
	}
	if len(content.AnswerFiles) == 0 || content.AnswerPrefix == "" {
		return domain.ReviewCompletionEvent{}, none, domain.NewMalformedInputError("annotation content", "missing answer file", nil)
	}

	answerLoc, err := resolveLocation(reqLoc.Bucket, content.AnswerPrefix, content.AnswerFiles[0])
	if err != nil {
		return domain.ReviewCompletionEvent{}, none, err
	}

	var answer reviewAnswer
	if err := s.deps.Store.GetJSON(ctx, answerLoc, &answer); err != nil {
		return domain.ReviewCompletionEvent{}, none, err
	}
	if answer.JobID == "" {
		return domain.ReviewCompletionEvent{}, none, domain.NewMalformedInputError("review answer", "missing JobId", nil)
	}

	pageID := answer.PageID
	if pageID == "" && answer.CurrPageNumber > 0 {
		pageID = domain.PageIDFor(answer.JobID, answer.CurrPageNumber)
	}
	if pageID == "" {
		return domain.ReviewCompletionEvent{}, none, domain.NewMalformedInputError("review answer", "missing page identity", nil)
	}

	var artifact objectstore.Location
	if len(content.InputFiles) > 0 && content.InputPrefix != "" {
		artifact, err = resolveLocation(reqLoc.Bucket, content.InputPrefix, "page/"+content.InputFiles[0])
		if err != nil {
			return domain.ReviewCompletionEvent{}, none, err
		}
	}

	return domain.ReviewCompletionEvent{
		JobID:      answer.JobID,
		DocumentID: answer.DocumentID,
		PageID:     pageID,
		ReviewedAt: time.Now().UTC(),
	}, artifact, nil
}

// resolveLocation joins prefix and name. prefix is either an s3:// URI or a
// key in defaultBucket.
func resolveLocation(defaultBucket, prefix, name string) (objectstore.Location, error) {
	if strings.HasPrefix(prefix, "s3://") {
		loc, err := objectstore.ParseURI(strings.TrimRight(prefix, "/") + "/" + name)
		if err != nil {
			return objectstore.Location{}, err
		}
		return loc, nil
	}
	return objectstore.Location{
		Bucket: defaultBucket,
		Key:    strings.Trim(prefix, "/") + "/" + name,
	}, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler runs every configured check.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := map[string]string{"status": "ready"}
	ready := true
	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			ready = false
			resp[name] = fmt.Sprintf("unhealthy: %v", err)
			continue
		}
		resp[name] = "healthy"
	}

	if !ready {
		resp["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
