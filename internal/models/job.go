package models

import "time"

// JobStatus is the normalized status of a remote asynchronous job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusTimeout   JobStatus = "timeout"
)

// Terminal reports whether no further polling can change the status
func (s JobStatus) Terminal() bool {
	return s != JobStatusPending
}

// AsyncJob tracks one submit-and-poll job at a third-party provider
type AsyncJob struct {
	ProviderID  string    `json:"providerId"`
	JobID       string    `json:"jobId"`
	SubmittedAt time.Time `json:"submittedAt"`
	Status      JobStatus `json:"status"`
	OutputURL   string    `json:"outputUrl,omitempty"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
}

// JobSnapshot is what a provider reports for a job on a single status check
type JobSnapshot struct {
	Status    JobStatus
	OutputURL string
	Error     string
}

// VideoInput carries the inputs a video provider may consume
type VideoInput struct {
	Prompt   string
	ImageURL string
	AudioURL string
}

// Has reports whether the named input ("prompt", "image", "audio") is present
func (in VideoInput) Has(name string) bool {
	switch name {
	case "prompt":
		return in.Prompt != ""
	case "image":
		return in.ImageURL != ""
	case "audio":
		return in.AudioURL != ""
	default:
		return false
	}
}
