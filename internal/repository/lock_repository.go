package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskflow/internal/model"
)

// LockRepository persists the scheduler lock/heartbeat row.
type LockRepository struct {
	db *gorm.DB
}

func NewLockRepository(db *gorm.DB) *LockRepository {
	return &LockRepository{db: db}
}

func (r *LockRepository) Get(ctx context.Context, id string) (*model.SchedulerLock, error) {
	var lock model.SchedulerLock
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&lock).Error; err != nil {
		return nil, fmt.Errorf("get scheduler lock %q: %w", id, mapError(err))
	}
	return &lock, nil
}

// CreateDefault inserts an idle lock whose last run lies at the Unix epoch,
// so the first pass is eligible immediately. Existing rows are left alone.
func (r *LockRepository) CreateDefault(ctx context.Context, id string) (*model.SchedulerLock, error) {
	lock := model.SchedulerLock{ID: id, LastRunDate: time.Unix(0, 0).UTC()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return nil, fmt.Errorf("create scheduler lock %q: %w", id, mapError(err))
	}
	return r.Get(ctx, id)
}

// TryAcquire flips is_running from false to true. Only the caller whose
// update changed the row owns the lock.
func (r *LockRepository) TryAcquire(ctx context.Context, id, owner string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.SchedulerLock{}).
		Where("id = ? AND is_running = ?", id, false).
		Updates(map[string]interface{}{
			"is_running": true,
			"locked_by":  owner,
			"locked_at":  at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("acquire scheduler lock %q: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release clears the running flag and records when the pass finished.
func (r *LockRepository) Release(ctx context.Context, id string, lastRun time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.SchedulerLock{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_running":    false,
			"last_run_date": lastRun,
			"locked_by":     "",
			"locked_at":     nil,
		})
	if res.Error != nil {
		return fmt.Errorf("release scheduler lock %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("release scheduler lock %q: %w", id, ErrNotFound)
	}
	return nil
}
