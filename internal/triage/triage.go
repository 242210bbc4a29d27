// Package triage decides which extracted fields need human review and
// turns extraction-complete notifications into review tasks.
package triage

import (
	"fmt"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/domain"
)

// Triage returns a manifest entry holding the fields of result whose
// confidence is below threshold, in their original order. Unscored fields
// are always flagged. When nothing is flagged it returns (nil, nil).
func Triage(result domain.ExtractionResult, threshold float64) (*domain.ManifestEntry, error) {
	if err := config.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if err := validateResult(result); err != nil {
		return nil, err
	}

	var flagged []domain.Field
	for _, f := range result.Fields {
		if !f.Scored() || *f.ConfidenceScore < threshold {
			flagged = append(flagged, f)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	return &domain.ManifestEntry{
		JobID:               result.JobID,
		DocumentID:          result.DocumentID,
		PageID:              result.PageID,
		PageNumber:          result.PageNumber,
		LowConfidenceFields: flagged,
		SourceRef:           result.SourceRef,
		Threshold:           threshold,
	}, nil
}

func validateResult(result domain.ExtractionResult) error {
	switch {
	case result.JobID == "":
		return domain.NewMalformedInputError("extraction result", "job id is required", nil)
	case result.DocumentID == "":
		return domain.NewMalformedInputError("extraction result", "document id is required", nil)
	case result.PageID == "":
		return domain.NewMalformedInputError("extraction result", "page id is required", nil)
	}
	for i, f := range result.Fields {
		if f.Scored() && (*f.ConfidenceScore < 0 || *f.ConfidenceScore > 1) {
			return domain.NewMalformedInputError("extraction result",
				fmt.Sprintf("field %d (%s) has confidence %v outside [0,1]", i, f.Name, *f.ConfidenceScore), nil)
		}
	}
	return nil
}
