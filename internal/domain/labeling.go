package domain

import "time"

// LabelingJobStatus is the coarse status of the streaming labeling job as
// seen by the lifecycle monitor.
type LabelingJobStatus string

const (
	LabelingJobRunning LabelingJobStatus = "RUNNING"
	LabelingJobStopped LabelingJobStatus = "STOPPED"
	LabelingJobFailed  LabelingJobStatus = "FAILED"
	LabelingJobNone    LabelingJobStatus = "NONE"
)

// NeedsCreate reports whether the monitor must start a new job.
func (s LabelingJobStatus) NeedsCreate() bool {
	return s != LabelingJobRunning
}

// MapLabelingJobStatus converts a control-plane status string into the
// monitor's state machine. Unknown values are treated as stopped so that
// the monitor replaces the job rather than trusting an unrecognised state.
func MapLabelingJobStatus(raw string) LabelingJobStatus {
	switch raw {
	case "InProgress", "Initializing":
		return LabelingJobRunning
	case "Failed":
		return LabelingJobFailed
	case "":
		return LabelingJobNone
	default:
		return LabelingJobStopped
	}
}

// LabelingJobState is the control plane's view of the streaming job.
type LabelingJobState struct {
	JobName   string            `json:"job_name"`
	Status    LabelingJobStatus `json:"status"`
	RawStatus string            `json:"raw_status,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// LabelingJobConfig is the configuration snapshot used to create a job.
type LabelingJobConfig struct {
	NamePrefix            string            `json:"name_prefix"`
	LabelAttributeName    string            `json:"label_attribute_name"`
	InputTopic            string            `json:"input_topic"`
	OutputPath            string            `json:"output_path"`
	RoleRef               string            `json:"role_ref"`
	WorkteamRef           string            `json:"workteam_ref"`
	UITemplateURI         string            `json:"ui_template_uri"`
	PreHumanTaskEndpoint  string            `json:"pre_human_task_endpoint"`
	ConsolidationEndpoint string            `json:"consolidation_endpoint"`
	TaskTitle             string            `json:"task_title"`
	TaskDescription       string            `json:"task_description"`
	TaskTimeLimit         time.Duration     `json:"task_time_limit"`
	WorkersPerObject      int               `json:"workers_per_object"`
	MaxConcurrentTasks    int               `json:"max_concurrent_tasks"`
	Tags                  map[string]string `json:"tags,omitempty"`
}

// MaxTaskTimeLimit is the longest time a worker may hold a task.
const MaxTaskTimeLimit = 8 * time.Hour

// ReconcileAction is what the lifecycle monitor did during one run.
type ReconcileAction string

const (
	ReconcileNoop    ReconcileAction = "noop"
	ReconcileCreated ReconcileAction = "created"
)

// ReconcileResult summarises one lifecycle monitor run.
type ReconcileResult struct {
	Action         ReconcileAction   `json:"action"`
	ObservedJob    string            `json:"observed_job,omitempty"`
	ObservedStatus LabelingJobStatus `json:"observed_status"`
	CreatedJob     string            `json:"created_job,omitempty"`
}
