package service

import (
	"fmt"
	"time"

	"taskflow/internal/model"
)

// instanceDateLayout renders the generation date in instance titles (M/D/YYYY).
const instanceDateLayout = "1/2/2006"

// BuildInstance returns the task row for the occurrence of template due at now.
// Dates move forward by the whole days elapsed since the series started; the
// template itself is not modified.
func BuildInstance(template model.Task, now time.Time, loc *time.Location) model.Task {
	if loc == nil {
		loc = time.UTC
	}

	days := 0
	if template.RecurringStartDate != nil {
		days = daysSince(*template.RecurringStartDate, now)
	}

	parentID := template.ID
	return model.Task{
		OwnerID:        template.OwnerID,
		ProjectID:      copyUint(template.ProjectID),
		ParentTaskID:   &parentID,
		Title:          InstanceTitle(template.Title, now, loc),
		Description:    template.Description,
		Priority:       template.Priority,
		Status:         "TODO",
		StartDate:      shiftDays(template.StartDate, days),
		DueDate:        shiftDays(template.DueDate, days),
		EstimatedHours: copyFloat(template.EstimatedHours),
		Resources:      template.Resources,
		DependsOnID:    copyUint(template.DependsOnID),
		IsRecurring:    false,
	}
}

// InstanceTitle is "<title> (<M/D/YYYY>)", the date taken in loc.
func InstanceTitle(title string, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s (%s)", title, now.In(loc).Format(instanceDateLayout))
}

// daysSince is floor((now - start) / 24h), never negative.
func daysSince(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / (24 * time.Hour))
}

func shiftDays(t *time.Time, days int) *time.Time {
	if t == nil {
		return nil
	}
	shifted := t.AddDate(0, 0, days)
	return &shifted
}

func copyUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
