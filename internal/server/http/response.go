package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/helixir/document-review-service/internal/domain"
)

type preHumanTaskRequest struct {
	Version        string                `json:"version"`
	LabelingJobArn string                `json:"labelingJobArn"`
	DataObject     *domain.ManifestEntry `json:"dataObject"`
}

type preHumanTaskResponse struct {
	TaskInput domain.ReviewTask `json:"taskInput"`
}

type consolidationRequest struct {
	Version            string `json:"version"`
	LabelingJobArn     string `json:"labelingJobArn"`
	LabelAttributeName string `json:"labelAttributeName"`
	Payload            struct {
		S3URI string `json:"s3Uri"`
	} `json:"payload"`
}

// consolidationEntry is one element of the consolidation request document.
type consolidationEntry struct {
	DatasetObjectID string `json:"datasetObjectId"`
	Annotations     []struct {
		WorkerID       string `json:"workerId"`
		AnnotationData struct {
			Content string `json:"content"`
		} `json:"annotationData"`
	} `json:"annotations"`
}

// annotationContent locates the reviewer answer and the per-page artifact.
type annotationContent struct {
	AnswerFiles  []string `json:"answerFiles"`
	AnswerPrefix string   `json:"answerPrefix"`
	InputFiles   []string `json:"inputFiles"`
	InputPrefix  string   `json:"inputPrefix"`
}

// reviewAnswer is the reviewer output written by the review UI.
type reviewAnswer struct {
	JobID          string `json:"JobId"`
	DocumentID     string `json:"documentId,omitempty"`
	PageID         string `json:"pageId,omitempty"`
	CurrPageNumber int    `json:"currPageNumber,omitempty"`
}

type consolidationResponse struct {
	JobID   string                   `json:"jobId"`
	PageID  string                   `json:"pageId"`
	Outcome domain.CompletionOutcome `json:"outcome"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// statusForError maps the domain error taxonomy onto HTTP status codes.
// Retryable failures return 503 so the caller redelivers.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
