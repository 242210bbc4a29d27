package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/helixir/document-review-service/internal/formatter"
)

// FuzzPreHumanTask checks that no request body makes the handler panic or
// answer with a server error.
func FuzzPreHumanTask(f *testing.F) {
	seeds := []string{
		``,
		`{}`,
		`{"dataObject":null}`,
		`{"dataObject":{"job_id":"j","document_id":"d","page_id":"j/1","source_ref":"s3://b/k.pdf","low_confidence_fields":[{"name":"b-1"}]}}`,
		`{"dataObject":{"low_confidence_fields":[{"name":"","confidence_score":7}]}}`,
		`{"dataObject":{"threshold":-1e308,"page_number":-5}}`,
		`{"dataObject":{"source_ref":"\u0000/../../etc/passwd"}}`,
		`[1,2,3]`,
		"\xff\xfe",
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	s := newTestServer(Deps{Formatter: formatter.Options{KMSKeyID: "k"}})
	f.Fuzz(func(t *testing.T, body []byte) {
		req := httptest.NewRequest(http.MethodPost, "/v1/annotations/pre-human-task", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code >= http.StatusInternalServerError {
			t.Fatalf("status %d for body %q", rec.Code, body)
		}
	})
}

// FuzzConsolidate checks that consolidation requests referencing arbitrary
// documents never panic.
func FuzzConsolidate(f *testing.F) {
	f.Add(`[{"annotations":[{"annotationData":{"content":"{}"}}]}]`, `{"JobId":"j","currPageNumber":1}`)
	f.Add(`[]`, ``)
	f.Add(`[{"annotations":[{"annotationData":{"content":"{\"answerFiles\":[\"a\"],\"answerPrefix\":\"p\"}"}}]}]`, `{"JobId":""}`)
	f.Add(`{"not":"a list"}`, `null`)

	f.Fuzz(func(t *testing.T, requestDoc, answer string) {
		store := newMemStore()
		store.put(consolidationURI, requestDoc)
		store.put("s3://review/p/a", answer)

		recorder := new(mockRecorder)
		recorder.On("RecordCompletionFrom", anyArgs()...).Return(noopOutcome(), nil)

		s := newTestServer(Deps{Tracker: recorder, Store: store})
		body := `{"payload":{"s3Uri":"` + consolidationURI + `"}}`
		req := httptest.NewRequest(http.MethodPost, "/v1/annotations/consolidate", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code >= http.StatusInternalServerError {
			t.Fatalf("status %d for request %q answer %q", rec.Code, requestDoc, answer)
		}
	})
}
