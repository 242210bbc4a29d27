package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/threshold"
)

// memStore is an in-memory objectstore.Store.
type memStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	types   map[string]string
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{bucket: "review", objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) key(loc objectstore.Location) string {
	if loc.Bucket == "" {
		loc.Bucket = m.bucket
	}
	return loc.String()
}

func (m *memStore) Get(_ context.Context, loc objectstore.Location) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[m.key(loc)]
	if !ok {
		return nil, domain.NewNotFoundError("object", m.key(loc))
	}
	return data, nil
}

func (m *memStore) GetJSON(ctx context.Context, loc objectstore.Location, v interface{}) error {
	data, err := m.Get(ctx, loc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewMalformedInputError(m.key(loc), "invalid JSON", err)
	}
	return nil
}

func (m *memStore) Put(_ context.Context, loc objectstore.Location, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[m.key(loc)] = data
	m.types[m.key(loc)] = contentType
	return nil
}

func (m *memStore) PutJSON(ctx context.Context, loc objectstore.Location, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Put(ctx, loc, data, "application/json")
}

func (m *memStore) Delete(_ context.Context, loc objectstore.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.key(loc))
	return nil
}

func (m *memStore) Bucket() string { return m.bucket }

func (m *memStore) putOutput(t *testing.T, key string, out domain.ExtractionOutput) {
	t.Helper()
	require.NoError(t, m.PutJSON(context.Background(), objectstore.Location{Key: key}, out))
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) RegisterExpectedPages(ctx context.Context, jobID, documentID string, total int) error {
	args := m.Called(ctx, jobID, documentID, total)
	return args.Error(0)
}

type fakePublisher struct {
	msgs []messaging.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...messaging.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

type failingThreshold struct {
	err error
}

func (f failingThreshold) Current(context.Context) (float64, error) {
	return 0, f.err
}

func succeededEvent() domain.ExtractionCompletedEvent {
	return domain.ExtractionCompletedEvent{
		JobID:            "job-1",
		Status:           domain.ExtractionStatusSucceeded,
		DocumentLocation: domain.DocumentLocation{Bucket: "docs", ObjectKey: "in/invoice.pdf"},
	}
}

type serviceFixture struct {
	svc       *Service
	store     *memStore
	registrar *mockRegistrar
	publisher *fakePublisher
}

func newFixture(t *testing.T, th threshold.Source) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:     newMemStore(),
		registrar: &mockRegistrar{},
		publisher: &fakePublisher{},
	}
	f.store.objects["s3://docs/in/invoice.pdf"] = buildPDF(t, 3)
	f.svc = NewService(th, f.store, f.registrar, f.publisher, Config{
		ExtractionPrefix: "extraction-output/",
		ReviewTaskTopic:  "review.tasks",
	}, nil, zerolog.Nop())
	return f
}

func twoPageOutput() []domain.ExtractionOutput {
	return []domain.ExtractionOutput{
		{
			DocumentMetadata: domain.DocumentMetadata{Pages: 3},
			Blocks: []domain.Block{
				block("p1", domain.BlockTypePage, 1, nil),
				block("w1", domain.BlockTypeWord, 1, score(99)),
				block("p2", domain.BlockTypePage, 2, nil),
				block("w2", domain.BlockTypeWord, 2, score(42)),
			},
		},
		{
			DocumentMetadata: domain.DocumentMetadata{Pages: 3},
			Blocks: []domain.Block{
				block("p3", domain.BlockTypePage, 3, nil),
				block("sig3", domain.BlockTypeSignature, 3, nil),
			},
		},
	}
}

func TestService_OnExtractionComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threshold.Static(0.9))
	outs := twoPageOutput()
	f.store.putOutput(t, "extraction-output/job-1/1", outs[0])
	f.store.putOutput(t, "extraction-output/job-1/2", outs[1])

	f.registrar.On("RegisterExpectedPages", mock.Anything, "job-1", "in/invoice.pdf", 2).Return(nil).Once()

	entries, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
	require.NoError(t, err)
	f.registrar.AssertExpectations(t)

	require.Len(t, entries, 2)
	assert.Equal(t, "job-1/2", entries[0].PageID)
	assert.Equal(t, []string{"w2"}, names(entries[0].LowConfidenceFields))
	assert.Equal(t, "s3://review/extraction-output/job-1/pages/2", entries[0].PagePrefix)
	assert.Equal(t, "job-1/3", entries[1].PageID)
	assert.Equal(t, "s3://docs/in/invoice.pdf", entries[1].SourceRef)

	t.Run("publishes one message per entry keyed by job", func(t *testing.T) {
		require.Len(t, f.publisher.msgs, 2)
		for _, msg := range f.publisher.msgs {
			assert.Equal(t, "review.tasks", msg.Topic)
			assert.Equal(t, "job-1", msg.Key)
			assert.Equal(t, domain.EventTypeReviewTaskCreated, msg.Headers["event_type"])
		}
		var decoded domain.ManifestEntry
		require.NoError(t, json.Unmarshal(f.publisher.msgs[0].Value, &decoded))
		assert.Equal(t, entries[0].PageID, decoded.PageID)
	})

	t.Run("copies each flagged source page", func(t *testing.T) {
		for _, n := range []int{2, 3} {
			key := fmt.Sprintf("s3://review/extraction-output/job-1/pages/%d/page/%d.pdf", n, n)
			require.Contains(t, f.store.objects, key)
			assert.Equal(t, ContentTypePDF, f.store.types[key])
			assert.Equal(t, 1, pageCount(t, f.store.objects[key]))
		}
		assert.NotContains(t, f.store.objects, "s3://review/extraction-output/job-1/pages/1/page/1.pdf")
	})

	t.Run("writes a result artifact for every page", func(t *testing.T) {
		for _, key := range []string{
			"s3://review/extraction-output/job-1/pages/1/extraction-result/1.json",
			"s3://review/extraction-output/job-1/pages/2/extraction-result/2.json",
			"s3://review/extraction-output/job-1/pages/3/extraction-result/3.json",
		} {
			assert.Contains(t, f.store.objects, key)
		}
	})
}

func TestService_SkipsUnsuccessfulJobs(t *testing.T) {
	f := newFixture(t, threshold.Static(0.9))
	ev := succeededEvent()
	ev.Status = "FAILED"

	entries, err := f.svc.OnExtractionComplete(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, entries)
	f.registrar.AssertNotCalled(t, "RegisterExpectedPages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.msgs)
}

func TestService_NoLowConfidencePages(t *testing.T) {
	f := newFixture(t, threshold.Static(0.1))
	f.store.putOutput(t, "extraction-output/job-1/1", domain.ExtractionOutput{Blocks: []domain.Block{
		block("p1", domain.BlockTypePage, 1, nil),
		block("w1", domain.BlockTypeWord, 1, score(99)),
	}})

	entries, err := f.svc.OnExtractionComplete(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Empty(t, entries)
	f.registrar.AssertNotCalled(t, "RegisterExpectedPages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.msgs)
}

func TestService_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing output is malformed", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("invalid output JSON is malformed", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.objects["s3://review/extraction-output/job-1/1"] = []byte("{")
		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("object store outage is retryable", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.getErr = errors.New("connection refused")
		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("invalid threshold is a config error", func(t *testing.T) {
		f := newFixture(t, threshold.Static(2))
		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.ErrorIs(t, err, domain.ErrConfig)
	})

	t.Run("registration failure publishes nothing", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.putOutput(t, "extraction-output/job-1/1", twoPageOutput()[0])
		f.registrar.On("RegisterExpectedPages", mock.Anything, "job-1", "in/invoice.pdf", 1).
			Return(domain.NewStoreUnavailableError("register_total", errors.New("down")))

		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Empty(t, f.publisher.msgs)
	})

	t.Run("publish failure is retryable", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.putOutput(t, "extraction-output/job-1/1", twoPageOutput()[0])
		f.registrar.On("RegisterExpectedPages", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.publisher.err = errors.New("kafka: leader not available")

		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "leader not available")
		assert.True(t, domain.IsRetryable(err))
		assert.NotErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("artifact write failure is retryable", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.putOutput(t, "extraction-output/job-1/1", twoPageOutput()[0])
		f.store.putErr = errors.New("503 slow down")

		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.True(t, domain.IsRetryable(err))
		f.registrar.AssertNotCalled(t, "RegisterExpectedPages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.msgs)
	})

	t.Run("missing source document is malformed", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.putOutput(t, "extraction-output/job-1/1", twoPageOutput()[0])
		delete(f.store.objects, "s3://docs/in/invoice.pdf")

		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
		f.registrar.AssertNotCalled(t, "RegisterExpectedPages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.msgs)
	})

	t.Run("threshold outage is retryable", func(t *testing.T) {
		f := newFixture(t, failingThreshold{err: domain.NewStoreUnavailableError("read_threshold", errors.New("dial tcp: refused"))})
		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("retry after publish failure publishes the same pages", func(t *testing.T) {
		f := newFixture(t, threshold.Static(0.9))
		f.store.putOutput(t, "extraction-output/job-1/1", twoPageOutput()[0])
		f.registrar.On("RegisterExpectedPages", mock.Anything, "job-1", "in/invoice.pdf", 1).Return(nil).Twice()
		f.publisher.err = errors.New("kafka: leader not available")

		_, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		require.True(t, domain.IsRetryable(err))

		f.publisher.err = nil
		entries, err := f.svc.OnExtractionComplete(ctx, succeededEvent())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Len(t, f.publisher.msgs, 1)
		f.registrar.AssertExpectations(t)
	})
}

func TestService_HandleMessage(t *testing.T) {
	f := newFixture(t, threshold.Static(0.9))

	err := f.svc.HandleMessage(context.Background(), messaging.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	payload, _ := json.Marshal(domain.ExtractionCompletedEvent{JobID: "job-1", Status: "IN_PROGRESS"})
	assert.NoError(t, f.svc.HandleMessage(context.Background(), messaging.Message{Value: payload}))
}
