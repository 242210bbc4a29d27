package triage

import (
	"github.com/helixir/document-review-service/internal/domain"
)

// Page holds the blocks of one document page.
type Page struct {
	Number int
	Blocks []domain.Block
}

// SplitPages groups the blocks of consecutive extraction output objects
// into pages. A PAGE block starts a new page; blocks seen before the first
// PAGE block belong to page 1.
func SplitPages(outputs []domain.ExtractionOutput) []Page {
	var (
		pages   []Page
		current *Page
	)

	for _, out := range outputs {
		for _, b := range out.Blocks {
			if b.BlockType == domain.BlockTypePage {
				if current != nil {
					pages = append(pages, *current)
				}
				n := b.Page
				if n == 0 {
					// Synchronous responses omit the page number.
					n = 1
				}
				current = &Page{Number: n}
				current.Blocks = append(current.Blocks, b)
				continue
			}
			if current == nil {
				current = &Page{Number: 1}
			}
			current.Blocks = append(current.Blocks, b)
		}
	}
	if current != nil {
		pages = append(pages, *current)
	}
	return pages
}

// Fields returns the reviewable fields of the page in block order.
func (p Page) Fields() []domain.Field {
	fields := make([]domain.Field, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		if domain.IsReviewableBlockType(b.BlockType) {
			fields = append(fields, b.ToField())
		}
	}
	return fields
}

// Result builds the ExtractionResult for the page.
func (p Page) Result(jobID, documentID, sourceRef string) domain.ExtractionResult {
	return domain.ExtractionResult{
		JobID:      jobID,
		DocumentID: documentID,
		PageID:     domain.PageIDFor(jobID, p.Number),
		PageNumber: p.Number,
		SourceRef:  sourceRef,
		Fields:     p.Fields(),
	}
}
