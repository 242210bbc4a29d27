package triage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/document-review-service/internal/domain"
)

// buildPDF returns a minimal valid PDF with the given number of blank pages.
func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()

	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", joinRefs(kids), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func joinRefs(refs []string) string {
	var b bytes.Buffer
	for i, r := range refs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r)
	}
	return b.String()
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	require.NoError(t, err)
	return n
}

func TestSourceContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"in/a.pdf", ContentTypePDF},
		{"in/a.PDF", ContentTypePDF},
		{"in/a.png", ContentTypePNG},
		{"in/a.jpg", ContentTypeJPEG},
		{"in/a.jpeg", ContentTypeJPEG},
		{"in/a.tif", ContentTypeTIFF},
		{"in/a.tiff", ContentTypeTIFF},
	}
	for _, tt := range tests {
		got, err := SourceContentType(tt.key)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}

	_, err := SourceContentType("in/a.docx")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestSourceDocument_PDFPage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.objects["s3://docs/in/invoice.pdf"] = buildPDF(t, 3)
	require.Equal(t, 3, pageCount(t, store.objects["s3://docs/in/invoice.pdf"]))

	doc := newSourceDocument(store, domain.DocumentLocation{Bucket: "docs", ObjectKey: "in/invoice.pdf"})

	data, ct, err := doc.Page(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePDF, ct)
	assert.Equal(t, 1, pageCount(t, data))

	t.Run("source is downloaded once", func(t *testing.T) {
		store.getErr = errors.New("connection refused")
		defer func() { store.getErr = nil }()

		_, _, err := doc.Page(ctx, 3)
		assert.NoError(t, err)
	})

	t.Run("page out of range is malformed", func(t *testing.T) {
		_, _, err := doc.Page(ctx, 4)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})
}

func TestSourceDocument_ImageIsCopiedWhole(t *testing.T) {
	store := newMemStore()
	png := []byte("\x89PNG\r\n\x1a\nimage-bytes")
	store.objects["s3://docs/scan.png"] = png

	doc := newSourceDocument(store, domain.DocumentLocation{Bucket: "docs", ObjectKey: "scan.png"})
	data, ct, err := doc.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePNG, ct)
	assert.Equal(t, png, data)
}

func TestSourceDocument_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing source is malformed", func(t *testing.T) {
		doc := newSourceDocument(newMemStore(), domain.DocumentLocation{Bucket: "docs", ObjectKey: "gone.pdf"})
		_, _, err := doc.Page(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("store outage is retryable", func(t *testing.T) {
		store := newMemStore()
		store.getErr = errors.New("connection refused")
		doc := newSourceDocument(store, domain.DocumentLocation{Bucket: "docs", ObjectKey: "a.pdf"})
		_, _, err := doc.Page(ctx, 1)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("corrupt PDF is malformed", func(t *testing.T) {
		store := newMemStore()
		store.objects["s3://docs/bad.pdf"] = []byte("%PDF-1.4 not really")
		doc := newSourceDocument(store, domain.DocumentLocation{Bucket: "docs", ObjectKey: "bad.pdf"})
		_, _, err := doc.Page(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("unsupported type is malformed", func(t *testing.T) {
		store := newMemStore()
		store.objects["s3://docs/a.docx"] = []byte("x")
		doc := newSourceDocument(store, domain.DocumentLocation{Bucket: "docs", ObjectKey: "a.docx"})
		_, _, err := doc.Page(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})
}
