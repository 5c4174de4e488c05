package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// JobRun records one idempotent background job execution.
type JobRun struct {
	ID             uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	JobName        string             `gorm:"column:job_name;type:text;not null;uniqueIndex:ux_job_runs_name_key,priority:1" json:"jobName"`
	IdempotencyKey string             `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_job_runs_name_key,priority:2" json:"idempotencyKey"`
	Status         enums.JobRunStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	Attempts       int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts    int                `gorm:"column:max_attempts;not null" json:"maxAttempts"`
	Input          *string            `gorm:"column:input;type:text" json:"input,omitempty"`
	Result         *string            `gorm:"column:result;type:text" json:"result,omitempty"`
	LastError      *string            `gorm:"column:last_error" json:"lastError,omitempty"`
	NextRetryAt    *time.Time         `gorm:"column:next_retry_at" json:"nextRetryAt,omitempty"`
	StartedAt      *time.Time         `gorm:"column:started_at" json:"startedAt,omitempty"`
	FinishedAt     *time.Time         `gorm:"column:finished_at" json:"finishedAt,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

func (j *JobRun) BeforeCreate(*gorm.DB) error {
	ensureID(&j.ID)
	return nil
}
