package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.LabelingConfig{APIBaseURL: server.URL + "/"}, nil, zerolog.Nop())
	require.NoError(t, err)
	client.http = fastClient(2)
	client.newID = func() string { return "0000-1111" }
	return client
}

func testJobConfig() domain.LabelingJobConfig {
	return domain.LabelingJobConfig{
		NamePrefix:            "doc-review",
		LabelAttributeName:    "review",
		InputTopic:            "topic-ref",
		OutputPath:            "s3://out/reviews",
		RoleRef:               "role-ref",
		WorkteamRef:           "team-ref",
		UITemplateURI:         "s3://ui/template.liquid",
		PreHumanTaskEndpoint:  "https://svc/v1/annotations/pre-human-task",
		ConsolidationEndpoint: "https://svc/v1/annotations/consolidate",
		TaskTitle:             "Review",
		TaskDescription:       "Review low confidence fields",
		TaskTimeLimit:         time.Hour,
		WorkersPerObject:      1,
		MaxConcurrentTasks:    100,
		Tags:                  map[string]string{"team": "ops", "env": "test"},
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(config.LabelingConfig{APIBaseURL: "not a url"}, nil, zerolog.Nop())

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "labeling.api_base_url", cfgErr.Key)
}

func TestClient_GetStatus(t *testing.T) {
	t.Run("sends listing query", func(t *testing.T) {
		var query map[string]string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/labeling-jobs", r.URL.Path)
			query = map[string]string{}
			for k := range r.URL.Query() {
				query[k] = r.URL.Query().Get(k)
			}
			_, _ = w.Write([]byte(`{"labelingJobSummaryList":[]}`))
		}))

		_, err := client.GetStatus(context.Background(), "doc-review")
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"nameContains": "doc-review",
			"sortBy":       "CreationTime",
			"sortOrder":    "Descending",
			"maxResults":   "1",
		}, query)
	})

	t.Run("no jobs is NONE", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"labelingJobSummaryList":[]}`))
		}))

		state, err := client.GetStatus(context.Background(), "doc-review")
		require.NoError(t, err)
		assert.Equal(t, domain.LabelingJobNone, state.Status)
		assert.Empty(t, state.JobName)
	})

	t.Run("maps newest matching job", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"labelingJobSummaryList":[
				{"labelingJobName":"doc-review-old","labelingJobStatus":"Failed","creationTime":"2026-01-01T00:00:00Z"},
				{"labelingJobName":"doc-review-new","labelingJobStatus":"InProgress","creationTime":"2026-02-01T00:00:00Z"},
				{"labelingJobName":"other-job","labelingJobStatus":"InProgress","creationTime":"2026-03-01T00:00:00Z"}
			]}`))
		}))

		state, err := client.GetStatus(context.Background(), "doc-review")
		require.NoError(t, err)
		assert.Equal(t, "doc-review-new", state.JobName)
		assert.Equal(t, domain.LabelingJobRunning, state.Status)
		assert.Equal(t, "InProgress", state.RawStatus)
	})

	t.Run("stopped and failed statuses", func(t *testing.T) {
		for raw, want := range map[string]domain.LabelingJobStatus{
			"Stopped":      domain.LabelingJobStopped,
			"Completed":    domain.LabelingJobStopped,
			"Failed":       domain.LabelingJobFailed,
			"Initializing": domain.LabelingJobRunning,
		} {
			raw, want := raw, want
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(listJobsResponse{Jobs: []jobSummary{{Name: "doc-review-1", Status: raw}}})
			}))

			state, err := client.GetStatus(context.Background(), "doc-review")
			require.NoError(t, err)
			assert.Equal(t, want, state.Status, raw)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"labelingJobSummaryList":[]}`))
		}))

		state, err := client.GetStatus(context.Background(), "doc-review")
		require.NoError(t, err)
		assert.Equal(t, domain.LabelingJobNone, state.Status)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("error response", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":"AccessDenied","message":"no"}`))
		}))

		_, err := client.GetStatus(context.Background(), "doc-review")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "AccessDenied", apiErr.Code)
	})
}

func TestClient_CreateJob(t *testing.T) {
	t.Run("posts job definition", func(t *testing.T) {
		var got createJobRequest
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/labeling-jobs", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"labelingJobArn":"ref/doc-review-0000-1111"}`))
		}))

		name, err := client.CreateJob(context.Background(), testJobConfig())
		require.NoError(t, err)

		assert.Equal(t, "doc-review-0000-1111", name)
		assert.Equal(t, name, got.Name)
		assert.Equal(t, "topic-ref", got.InputConfig.DataSource.SNSDataSource.TopicRef)
		assert.Equal(t, "s3://out/reviews", got.OutputConfig.OutputPath)
		assert.Equal(t, 3600, got.HumanTaskConfig.TaskTimeLimitInSeconds)
		assert.Equal(t, 100, got.HumanTaskConfig.MaxConcurrentTaskCount)
		assert.Equal(t, "https://svc/v1/annotations/consolidate", got.HumanTaskConfig.AnnotationConsolidationConfig.Endpoint)
		assert.Equal(t, []tag{{Key: "env", Value: "test"}, {Key: "team", Value: "ops"}}, got.Tags)
	})

	t.Run("failure is not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
		}))

		name, err := client.CreateJob(context.Background(), testJobConfig())
		assert.Empty(t, name)

		var createErr *domain.CreateJobError
		require.True(t, errors.As(err, &createErr))
		assert.Equal(t, "doc-review-0000-1111", createErr.JobName)
		assert.Equal(t, http.StatusServiceUnavailable, createErr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("transport failure is a create error", func(t *testing.T) {
		client := newTestClient(t, http.NotFoundHandler())
		client.baseURL = "http://127.0.0.1:1"

		_, err := client.CreateJob(context.Background(), testJobConfig())

		var createErr *domain.CreateJobError
		require.True(t, errors.As(err, &createErr))
		assert.Zero(t, createErr.StatusCode)
	})
}
