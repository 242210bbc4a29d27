package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ManifestEntry is one unit of human-review work for a single page.
// It is created by triage and never mutated afterwards.
type ManifestEntry struct {
	JobID               string  `json:"job_id" validate:"required"`
	DocumentID          string  `json:"document_id" validate:"required"`
	PageID              string  `json:"page_id" validate:"required"`
	PageNumber          int     `json:"page_number" validate:"gte=0"`
	LowConfidenceFields []Field `json:"low_confidence_fields" validate:"required,min=1,dive"`
	SourceRef           string  `json:"source_ref" validate:"required"`
	Threshold           float64 `json:"threshold" validate:"gte=0,lte=1"`
	// PagePrefix is the object-store prefix holding the per-page artifacts.
	PagePrefix string `json:"page_prefix,omitempty"`
}

// ReviewTask is the payload the review UI renders for one manifest entry.
type ReviewTask struct {
	Source              string            `json:"source"`
	DocumentID          string            `json:"documentId"`
	PageID              string            `json:"pageId"`
	FileExtension       string            `json:"fileExtension,omitempty"`
	InputPrefix         string            `json:"inputS3Prefix,omitempty"`
	OutputPrefix        string            `json:"outputS3Prefix,omitempty"`
	CurrPageNumber      int               `json:"currPageNumber"`
	NumberOfPages       int               `json:"numberOfPages"`
	OutputKMSKeyID      string            `json:"outputKmsKeyId,omitempty"`
	ExtractionJobID     string            `json:"textractJobId"`
	SourceRef           string            `json:"sourceRef"`
	LowConfidenceFields []Field           `json:"lowConfidenceFields"`
	Configuration       TaskConfiguration `json:"configuration"`
}

// TaskConfiguration carries review settings shown to the worker.
type TaskConfiguration struct {
	DefaultConfidenceThreshold float64 `json:"defaultConfidenceThreshold"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the entry against its struct tags and returns a
// MalformedInputError listing the offending fields.
func (m ManifestEntry) Validate() error {
	return validateStruct("manifest entry", m)
}

func validateStruct(source string, v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewMalformedInputError(source, "validation failed", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return NewMalformedInputError(source, strings.Join(msgs, "; "), nil)
}
