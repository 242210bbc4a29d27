package labeling

import "time"

// listJobsResponse is the control API response for a job listing.
type listJobsResponse struct {
	Jobs []jobSummary `json:"labelingJobSummaryList"`
}

type jobSummary struct {
	Name          string    `json:"labelingJobName"`
	ARN           string    `json:"labelingJobArn,omitempty"`
	Status        string    `json:"labelingJobStatus"`
	CreationTime  time.Time `json:"creationTime"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// createJobRequest is the control API request that starts a streaming job.
type createJobRequest struct {
	Name               string          `json:"labelingJobName"`
	LabelAttributeName string          `json:"labelAttributeName"`
	InputConfig        inputConfig     `json:"inputConfig"`
	OutputConfig       outputConfig    `json:"outputConfig"`
	RoleRef            string          `json:"roleArn"`
	HumanTaskConfig    humanTaskConfig `json:"humanTaskConfig"`
	Tags               []tag           `json:"tags,omitempty"`
}

type inputConfig struct {
	DataSource dataSource `json:"dataSource"`
}

type dataSource struct {
	SNSDataSource snsDataSource `json:"snsDataSource"`
}

type snsDataSource struct {
	TopicRef string `json:"snsTopicArn"`
}

type outputConfig struct {
	OutputPath string `json:"s3OutputPath"`
}

type humanTaskConfig struct {
	WorkteamRef                       string        `json:"workteamArn"`
	UIConfig                          uiConfig      `json:"uiConfig"`
	PreHumanTaskEndpoint              string        `json:"preHumanTaskLambdaArn"`
	TaskTitle                         string        `json:"taskTitle"`
	TaskDescription                   string        `json:"taskDescription"`
	NumberOfHumanWorkersPerDataObject int           `json:"numberOfHumanWorkersPerDataObject"`
	TaskTimeLimitInSeconds            int           `json:"taskTimeLimitInSeconds"`
	MaxConcurrentTaskCount            int           `json:"maxConcurrentTaskCount"`
	AnnotationConsolidationConfig     consolidation `json:"annotationConsolidationConfig"`
}

type uiConfig struct {
	UITemplateURI string `json:"uiTemplateS3Uri"`
}

type consolidation struct {
	Endpoint string `json:"annotationConsolidationLambdaArn"`
}

type tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// createJobResponse is the control API response to a create request.
type createJobResponse struct {
	ARN string `json:"labelingJobArn"`
}

// errorResponse is the control API error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
