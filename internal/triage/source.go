package triage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/objectstore"
)

// Content types of the document formats the extraction service accepts.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeTIFF = "image/tiff"
)

var disableConfigDir sync.Once

// SourceContentType returns the content type of a source document from its
// file extension. Unsupported types are *domain.MalformedInputError.
func SourceContentType(key string) (string, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return ContentTypePDF, nil
	case ".png":
		return ContentTypePNG, nil
	case ".jpg", ".jpeg":
		return ContentTypeJPEG, nil
	case ".tif", ".tiff":
		return ContentTypeTIFF, nil
	}
	return "", domain.NewMalformedInputError("source document", fmt.Sprintf("unsupported file type %q", path.Ext(key)), nil)
}

// sourceDocument lazily downloads the source document of one extraction job
// and cuts single pages out of it.
type sourceDocument struct {
	store       objectstore.Store
	loc         objectstore.Location
	contentType string
	data        []byte
	pageCount   int
}

func newSourceDocument(store objectstore.Store, loc domain.DocumentLocation) *sourceDocument {
	return &sourceDocument{
		store: store,
		loc:   objectstore.Location{Bucket: loc.Bucket, Key: strings.TrimPrefix(loc.ObjectKey, "/")},
	}
}

func (d *sourceDocument) load(ctx context.Context) error {
	if d.data != nil {
		return nil
	}

	ct, err := SourceContentType(d.loc.Key)
	if err != nil {
		return err
	}

	data, err := d.store.Get(ctx, d.loc)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewMalformedInputError("source document", "missing "+d.loc.String(), err)
	}
	if err != nil {
		return domain.NewStoreUnavailableError("load_source_document", err)
	}

	if ct == ContentTypePDF {
		n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
		if err != nil {
			return domain.NewMalformedInputError("source document", "unreadable PDF "+d.loc.String(), err)
		}
		d.pageCount = n
	}

	d.contentType = ct
	d.data = data
	return nil
}

// Page returns the bytes of page n and their content type. PDF pages are
// written as a one-page PDF; images are returned whole.
func (d *sourceDocument) Page(ctx context.Context, n int) ([]byte, string, error) {
	if err := d.load(ctx); err != nil {
		return nil, "", err
	}
	if d.contentType != ContentTypePDF {
		return d.data, d.contentType, nil
	}

	if n < 1 || n > d.pageCount {
		return nil, "", domain.NewMalformedInputError("source document",
			fmt.Sprintf("page %d out of range, %s has %d pages", n, d.loc, d.pageCount), nil)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(d.data), &buf, []string{strconv.Itoa(n)}, pdfConfig()); err != nil {
		return nil, "", domain.NewMalformedInputError("source document", fmt.Sprintf("extract page %d of %s", n, d.loc), err)
	}
	return buf.Bytes(), ContentTypePDF, nil
}

func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
