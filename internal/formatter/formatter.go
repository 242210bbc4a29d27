// Package formatter maps manifest entries onto the payload rendered by the
// review UI.
package formatter

import (
	"fmt"
	"path"

	"github.com/helixir/document-review-service/internal/domain"
)

// Options holds static deployment values copied into every task.
type Options struct {
	// KMSKeyID encrypts reviewer output. Empty leaves encryption to the bucket default.
	KMSKeyID string
}

// Format builds the ReviewTask for entry. It is deterministic and has no
// side effects.
func Format(entry domain.ManifestEntry, opts Options) (domain.ReviewTask, error) {
	if err := entry.Validate(); err != nil {
		return domain.ReviewTask{}, err
	}

	name := path.Base(entry.SourceRef)
	fields := make([]domain.Field, len(entry.LowConfidenceFields))
	copy(fields, entry.LowConfidenceFields)

	return domain.ReviewTask{
		Source:              fmt.Sprintf("Review document %s page number %d", name, entry.PageNumber),
		DocumentID:          entry.DocumentID,
		PageID:              entry.PageID,
		FileExtension:       path.Ext(name),
		InputPrefix:         entry.PagePrefix,
		OutputPrefix:        entry.PagePrefix,
		CurrPageNumber:      entry.PageNumber,
		NumberOfPages:       1,
		OutputKMSKeyID:      opts.KMSKeyID,
		ExtractionJobID:     entry.JobID,
		SourceRef:           entry.SourceRef,
		LowConfidenceFields: fields,
		Configuration: domain.TaskConfiguration{
			DefaultConfidenceThreshold: entry.Threshold,
		},
	}, nil
}
