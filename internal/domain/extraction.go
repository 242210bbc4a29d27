package domain

import (
	"fmt"
	"path"
	"strings"
)

// ExtractionStatusSucceeded is the only extraction job status that carries
// results worth triaging.
const ExtractionStatusSucceeded = "SUCCEEDED"

// Block types emitted by the extraction service.
const (
	BlockTypePage        = "PAGE"
	BlockTypeLine        = "LINE"
	BlockTypeWord        = "WORD"
	BlockTypeTable       = "TABLE"
	BlockTypeCell        = "CELL"
	BlockTypeMergedCell  = "MERGED_CELL"
	BlockTypeKeyValueSet = "KEY_VALUE_SET"
	BlockTypeSignature   = "SIGNATURE"
)

// reviewableBlockTypes are the block types whose confidence is subject to
// human review. PAGE blocks carry no confidence and LINE confidence is
// covered by its WORD children.
var reviewableBlockTypes = map[string]bool{
	BlockTypeWord:        true,
	BlockTypeTable:       true,
	BlockTypeCell:        true,
	BlockTypeMergedCell:  true,
	BlockTypeKeyValueSet: true,
	BlockTypeSignature:   true,
}

// IsReviewableBlockType reports whether blocks of type t become review fields.
func IsReviewableBlockType(t string) bool {
	return reviewableBlockTypes[t]
}

// Field is a single extracted value with its confidence.
type Field struct {
	// Name identifies the field within its page (the extraction block id).
	Name string `json:"name" validate:"required"`
	// Type is the extraction block type, e.g. WORD or KEY_VALUE_SET.
	Type string `json:"type,omitempty"`
	// Value is the extracted text, if any.
	Value string `json:"value,omitempty"`
	// ConfidenceScore is in [0,1]. Nil means the extractor did not score the field.
	ConfidenceScore *float64 `json:"confidence_score,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Scored reports whether the field carries a confidence score.
func (f Field) Scored() bool {
	return f.ConfidenceScore != nil
}

// ExtractionResult is the extraction output for one page of a document.
type ExtractionResult struct {
	JobID      string  `json:"job_id"`
	DocumentID string  `json:"document_id"`
	PageID     string  `json:"page_id"`
	PageNumber int     `json:"page_number"`
	SourceRef  string  `json:"source_ref"`
	Fields     []Field `json:"fields"`
}

// PageIDFor derives the stable page identifier used across triage and
// completion tracking.
func PageIDFor(jobID string, pageNumber int) string {
	return fmt.Sprintf("%s/%d", jobID, pageNumber)
}

// ExtractionCompletedEvent is the notification published by the extraction
// service when an asynchronous analysis job finishes.
type ExtractionCompletedEvent struct {
	JobID            string           `json:"JobId"`
	Status           string           `json:"Status"`
	API              string           `json:"API,omitempty"`
	Timestamp        int64            `json:"Timestamp,omitempty"`
	DocumentLocation DocumentLocation `json:"DocumentLocation"`
}

// DocumentLocation points at the source document in object storage.
type DocumentLocation struct {
	Bucket    string `json:"S3Bucket"`
	ObjectKey string `json:"S3ObjectName"`
}

// SourceRef returns the document location as a URI.
func (l DocumentLocation) SourceRef() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, strings.TrimPrefix(l.ObjectKey, "/"))
}

// FileName returns the base name of the source document.
func (l DocumentLocation) FileName() string {
	return path.Base(l.ObjectKey)
}

// FileExtension returns the extension of the source document including the dot.
func (l DocumentLocation) FileExtension() string {
	return path.Ext(l.ObjectKey)
}

// Validate checks that the event carries the fields triage needs.
func (e ExtractionCompletedEvent) Validate() error {
	switch {
	case e.JobID == "":
		return NewMalformedInputError("extraction event", "JobId is required", nil)
	case e.Status == "":
		return NewMalformedInputError("extraction event", "Status is required", nil)
	case e.Status == ExtractionStatusSucceeded && e.DocumentLocation.ObjectKey == "":
		return NewMalformedInputError("extraction event", "DocumentLocation.S3ObjectName is required", nil)
	}
	return nil
}

// ExtractionOutput is one numbered result object written by the extraction
// service. Large documents are split across several of these.
type ExtractionOutput struct {
	ModelVersion     string           `json:"AnalyzeDocumentModelVersion,omitempty"`
	JobStatus        string           `json:"JobStatus,omitempty"`
	DocumentMetadata DocumentMetadata `json:"DocumentMetadata"`
	Blocks           []Block          `json:"Blocks"`
}

// DocumentMetadata describes the analysed document.
type DocumentMetadata struct {
	Pages int `json:"Pages"`
}

// Block is a single element of the extraction output.
type Block struct {
	ID         string   `json:"Id"`
	BlockType  string   `json:"BlockType"`
	Page       int      `json:"Page,omitempty"`
	Text       string   `json:"Text,omitempty"`
	Confidence *float64 `json:"Confidence,omitempty"`
	EntityType []string `json:"EntityTypes,omitempty"`
}

// ToField converts a reviewable block into a Field. The extraction service
// reports confidence on a 0..100 scale which is normalised to [0,1].
func (b Block) ToField() Field {
	f := Field{
		Name:  b.ID,
		Type:  b.BlockType,
		Value: b.Text,
	}
	if b.Confidence != nil {
		c := *b.Confidence / 100
		f.ConfidenceScore = &c
	}
	return f
}
