package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/document-review-service/internal/domain"
)

func block(id, typ string, page int, conf *float64) domain.Block {
	return domain.Block{ID: id, BlockType: typ, Page: page, Confidence: conf}
}

func TestSplitPages(t *testing.T) {
	outputs := []domain.ExtractionOutput{
		{Blocks: []domain.Block{
			block("p1", domain.BlockTypePage, 1, nil),
			block("l1", domain.BlockTypeLine, 1, score(99)),
			block("w1", domain.BlockTypeWord, 1, score(99)),
			block("p2", domain.BlockTypePage, 2, nil),
			block("w2", domain.BlockTypeWord, 2, score(40)),
		}},
		// A page may continue into the next output object.
		{Blocks: []domain.Block{
			block("kv2", domain.BlockTypeKeyValueSet, 2, score(70)),
			block("p3", domain.BlockTypePage, 3, nil),
			block("s3", domain.BlockTypeSignature, 3, nil),
		}},
	}

	pages := SplitPages(outputs)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].Number)
	assert.Len(t, pages[0].Blocks, 3)
	assert.Equal(t, 2, pages[1].Number)
	assert.Len(t, pages[1].Blocks, 3)
	assert.Equal(t, 3, pages[2].Number)

	t.Run("fields skip page and line blocks", func(t *testing.T) {
		fields := pages[0].Fields()
		require.Len(t, fields, 1)
		assert.Equal(t, "w1", fields[0].Name)
		assert.InDelta(t, 0.99, *fields[0].ConfidenceScore, 1e-9)
	})

	t.Run("result carries derived page id", func(t *testing.T) {
		r := pages[1].Result("job-1", "in/doc.pdf", "s3://docs/in/doc.pdf")
		assert.Equal(t, "job-1/2", r.PageID)
		assert.Equal(t, 2, r.PageNumber)
		assert.Equal(t, []string{"w2", "kv2"}, names(r.Fields))
	})
}

func TestSplitPages_MissingPageNumberDefaultsToOne(t *testing.T) {
	pages := SplitPages([]domain.ExtractionOutput{{Blocks: []domain.Block{
		block("w0", domain.BlockTypeWord, 0, score(90)),
		block("p", domain.BlockTypePage, 0, nil),
		block("w1", domain.BlockTypeWord, 0, score(90)),
	}}})

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 1, pages[1].Number)
}

func TestSplitPages_Empty(t *testing.T) {
	assert.Empty(t, SplitPages(nil))
	assert.Empty(t, SplitPages([]domain.ExtractionOutput{{}}))
}
