package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// TaskRepository stores recurring templates and their generated instances.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateTemplate stores task as a recurring template.
func (r *TaskRepository) CreateTemplate(ctx context.Context, task *model.Task) error {
	task.IsRecurring = true
	task.ParentTaskID = nil
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create template: %w", mapError(err))
	}
	return nil
}

// CreateInstance inserts a generated instance. A second instance with the same
// parent and title fails with ErrDuplicate.
func (r *TaskRepository) CreateInstance(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create instance: %w", mapError(err))
	}
	return nil
}

// FindRecurringTemplates returns every template in a stable order.
func (r *TaskRepository) FindRecurringTemplates(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("is_recurring = ? AND parent_task_id IS NULL", true).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("find recurring templates: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("find task %d: %w", id, mapError(err))
	}
	return &task, nil
}

// ListInstances returns the instances generated from a template, oldest first.
func (r *TaskRepository) ListInstances(ctx context.Context, templateID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("parent_task_id = ?", templateID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return tasks, nil
}

// UpdateBookkeeping records a successful generation on the template.
func (r *TaskRepository) UpdateBookkeeping(ctx context.Context, id uint, lastGenerated time.Time, next *time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_generated_date":  lastGenerated,
		"next_generation_date": next,
	})
	if res.Error != nil {
		return fmt.Errorf("update template bookkeeping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update template bookkeeping: %w", ErrNotFound)
	}
	return nil
}

// RemoveDuplicateInstances deletes all but the earliest instance per (parent, title).
func (r *TaskRepository) RemoveDuplicateInstances(ctx context.Context) (int64, error) {
	return removeDuplicateInstances(ctx, r.db)
}
