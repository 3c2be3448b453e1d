package model

import "time"

// Task is either a recurring template (IsRecurring, no parent) or a concrete
// unit of work. Instances generated from a template point back to it through
// ParentTaskID; (ParentTaskID, Title) is unique so an occurrence is stored once.
type Task struct {
	ID             uint   `gorm:"primaryKey"`
	OwnerID        uint   `gorm:"index"`
	ProjectID      *uint  `gorm:"index"`
	ParentTaskID   *uint  `gorm:"uniqueIndex:idx_task_parent_title"`
	Title          string `gorm:"uniqueIndex:idx_task_parent_title;not null"`
	Description    string
	Priority       string `gorm:"default:MEDIUM"`
	Status         string `gorm:"default:TODO"`
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours *float64
	Resources      string
	DependsOnID    *uint

	IsRecurring        bool   `gorm:"index;default:false"`
	RecurringConfig    string `gorm:"type:text"`
	RecurringStartDate *time.Time
	RecurringEndDate   *time.Time
	LastGeneratedDate  *time.Time
	NextGenerationDate *time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTemplate reports whether t generates instances rather than being one.
func (t Task) IsTemplate() bool {
	return t.IsRecurring && t.ParentTaskID == nil
}
