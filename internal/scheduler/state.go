package scheduler

import "time"

// JobState persists per-gate scheduling state so daily jobs stay gated
// across process restarts.
type JobState struct {
	Name      string `gorm:"primaryKey;size:64"`
	LastDay   string `gorm:"size:10"`
	UpdatedAt time.Time
}

func (JobState) TableName() string { return "scheduler_job_state" }
