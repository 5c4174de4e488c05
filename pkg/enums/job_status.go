package enums

import "fmt"

// JobRunStatus is the lifecycle state of a background job run.
type JobRunStatus string

const (
	JobRunPending   JobRunStatus = "PENDING"
	JobRunRunning   JobRunStatus = "RUNNING"
	JobRunSucceeded JobRunStatus = "SUCCEEDED"
	JobRunFailed    JobRunStatus = "FAILED"
)

var validJobRunStatuses = []JobRunStatus{
	JobRunPending,
	JobRunRunning,
	JobRunSucceeded,
	JobRunFailed,
}

// IsValid reports whether the value is a known JobRunStatus.
func (s JobRunStatus) IsValid() bool {
	for _, candidate := range validJobRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsReusable reports whether a run in this state must not be executed again.
func (s JobRunStatus) IsReusable() bool {
	return s == JobRunSucceeded || s == JobRunRunning
}

// ParseJobRunStatus converts raw input into JobRunStatus.
func ParseJobRunStatus(value string) (JobRunStatus, error) {
	for _, candidate := range validJobRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job run status %q", value)
}
