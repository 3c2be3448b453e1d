package model

import "time"

// SchedulerLock is the single row that serializes generation passes across
// processes. IsRunning has no expiry: a process that dies mid-pass leaves it
// set until an operator clears it.
type SchedulerLock struct {
	ID          string `gorm:"primaryKey;size:100"`
	IsRunning   bool   `gorm:"not null;default:false"`
	LastRunDate time.Time
	LockedBy    string `gorm:"size:100"`
	LockedAt    *time.Time
	UpdatedAt   time.Time
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
