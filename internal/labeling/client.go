// Package labeling is a client for the streaming labeling-job control API.
package labeling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/observability"
)

const jobsPath = "/labeling-jobs"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// Client talks to the labeling control API.
type Client struct {
	baseURL string
	http    *HTTPClient
	metrics *observability.Metrics
	logger  zerolog.Logger
	newID   func() string
}

// NewClient creates a Client from the labeling configuration.
func NewClient(cfg config.LabelingConfig, metrics *observability.Metrics, logger zerolog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return nil, domain.NewConfigError("labeling.api_base_url", fmt.Sprintf("invalid URL %q", cfg.APIBaseURL))
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		http: NewHTTPClient(HTTPClientConfig{
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			APIKey:     cfg.APIKey,
		}),
		metrics: metrics,
		logger:  logger.With().Str("component", "labeling_client").Logger(),
		newID:   func() string { return uuid.New().String() },
	}, nil
}

// GetStatus returns the state of the most recently created job whose name
// starts with namePrefix. When no job exists the status is NONE.
func (c *Client) GetStatus(ctx context.Context, namePrefix string) (domain.LabelingJobState, error) {
	q := url.Values{}
	q.Set("nameContains", namePrefix)
	q.Set("sortBy", "CreationTime")
	q.Set("sortOrder", "Descending")
	q.Set("maxResults", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+jobsPath+"?"+q.Encode(), nil)
	if err != nil {
		return domain.LabelingJobState{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordLabelingRequest("get_status", "error", time.Since(start).Seconds())
		return domain.LabelingJobState{}, fmt.Errorf("failed to list labeling jobs: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordLabelingRequest("get_status", statusClass(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return domain.LabelingJobState{}, fmt.Errorf("failed to list labeling jobs: %w", readAPIError(resp))
	}

	var list listJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return domain.LabelingJobState{}, fmt.Errorf("failed to decode job listing: %w", err)
	}

	// The listing may hold more than the newest job.
	matching := make([]jobSummary, 0, len(list.Jobs))
	for _, j := range list.Jobs {
		if strings.HasPrefix(j.Name, namePrefix) {
			matching = append(matching, j)
		}
	}
	if len(matching) == 0 {
		return domain.LabelingJobState{Status: domain.LabelingJobNone}, nil
	}
	sort.SliceStable(matching, func(i, k int) bool {
		return matching[i].CreationTime.After(matching[k].CreationTime)
	})

	latest := matching[0]
	return domain.LabelingJobState{
		JobName:   latest.Name,
		Status:    domain.MapLabelingJobStatus(latest.Status),
		RawStatus: latest.Status,
		CreatedAt: latest.CreationTime,
	}, nil
}

// CreateJob starts a new streaming job named "<prefix>-<uuid>" and returns
// its name. The request is sent once; any failure is a *domain.CreateJobError.
func (c *Client) CreateJob(ctx context.Context, cfg domain.LabelingJobConfig) (string, error) {
	name := fmt.Sprintf("%s-%s", cfg.NamePrefix, c.newID())

	body, err := json.Marshal(buildCreateRequest(name, cfg))
	if err != nil {
		return "", domain.NewCreateJobError(name, 0, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+jobsPath, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewCreateJobError(name, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.DoOnce(req)
	if err != nil {
		c.metrics.RecordLabelingRequest("create_job", "error", time.Since(start).Seconds())
		return "", domain.NewCreateJobError(name, 0, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordLabelingRequest("create_job", statusClass(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", domain.NewCreateJobError(name, resp.StatusCode, readAPIError(resp))
	}

	var created createJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		c.logger.Warn().Err(err).Str("job_name", name).Msg("could not decode create response")
	}

	c.logger.Info().Str("job_name", name).Str("job_ref", created.ARN).Msg("labeling job created")
	return name, nil
}

func buildCreateRequest(name string, cfg domain.LabelingJobConfig) createJobRequest {
	keys := make([]string, 0, len(cfg.Tags))
	for k := range cfg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, tag{Key: k, Value: cfg.Tags[k]})
	}

	return createJobRequest{
		Name:               name,
		LabelAttributeName: cfg.LabelAttributeName,
		InputConfig: inputConfig{
			DataSource: dataSource{SNSDataSource: snsDataSource{TopicRef: cfg.InputTopic}},
		},
		OutputConfig: outputConfig{OutputPath: cfg.OutputPath},
		RoleRef:      cfg.RoleRef,
		HumanTaskConfig: humanTaskConfig{
			WorkteamRef:                       cfg.WorkteamRef,
			UIConfig:                          uiConfig{UITemplateURI: cfg.UITemplateURI},
			PreHumanTaskEndpoint:              cfg.PreHumanTaskEndpoint,
			TaskTitle:                         cfg.TaskTitle,
			TaskDescription:                   cfg.TaskDescription,
			NumberOfHumanWorkersPerDataObject: cfg.WorkersPerObject,
			TaskTimeLimitInSeconds:            int(cfg.TaskTimeLimit / time.Second),
			MaxConcurrentTaskCount:            cfg.MaxConcurrentTasks,
			AnnotationConsolidationConfig:     consolidation{Endpoint: cfg.ConsolidationEndpoint},
		},
		Tags: tags,
	}
}

// APIError is a non-success response from the control API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("labeling API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("labeling API error %d: %s", e.StatusCode, e.Message)
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
