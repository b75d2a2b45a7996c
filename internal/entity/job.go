package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ParseJobStatus accepts only the persisted job statuses.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return JobStatus(s), true
	}
	return "", false
}

type JobType string

const (
	JobExtract     JobType = "extract"
	JobVectorize   JobType = "vectorize"
	JobSummarize   JobType = "summarize"
	JobTranslate   JobType = "translate"
	JobTagGenerate JobType = "tag-generate"
)

var jobTypes = []JobType{JobExtract, JobVectorize, JobSummarize, JobTranslate, JobTagGenerate}

// JobTypes returns every stage type the queue accepts.
func JobTypes() []JobType {
	out := make([]JobType, len(jobTypes))
	copy(out, jobTypes)
	return out
}

func ParseJobType(s string) (JobType, bool) {
	for _, t := range jobTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

const (
	DefaultPriority    = 1
	DefaultMaxAttempts = 3
)

type Job struct {
	ID             uuid.UUID  `json:"id"`
	Type           JobType    `json:"type"`
	Payload        Payload    `json:"-"`
	RawPayload     []byte     `json:"-"`
	ArticleID      int64      `json:"article_id"`
	Status         JobStatus  `json:"status"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	Priority       int        `json:"priority"`
	Error          *string    `json:"error,omitempty"`
	AssignedWorker *string    `json:"assigned_worker,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no automatic transition leaves the current status.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CanRetry reports whether a failed job still has attempt budget left.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.Attempts < j.MaxAttempts
}

// MarshalJSON renders the payload as a nested object rather than an opaque string.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	raw := json.RawMessage(j.RawPayload)
	if len(raw) == 0 && j.Payload != nil {
		b, err := json.Marshal(j.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias: alias(j), Payload: raw})
}

// UnmarshalJSON decodes the nested payload into its typed variant.
func (j *Job) UnmarshalJSON(b []byte) error {
	type alias Job
	var aux struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*j = Job(aux.alias)
	j.RawPayload = aux.Payload
	if len(aux.Payload) > 0 && j.Type != "" {
		p, err := DecodePayload(j.Type, aux.Payload)
		if err != nil {
			return err
		}
		j.Payload = p
	}
	return nil
}
