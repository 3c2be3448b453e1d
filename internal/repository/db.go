package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskflow/internal/model"
)

// taskParentTitleIndex is the unique index that stops a template from getting
// two instances for the same occurrence.
const taskParentTitleIndex = "idx_task_parent_title"

// NewDB opens PostgreSQL for postgres:// DSNs and SQLite otherwise, then runs migrations.
func NewDB(dsn string, zl zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "taskflow.db"
	}

	var dialector gorm.Dialector
	sqliteDSN := !isPostgresDSN(dsn)
	if sqliteDSN {
		if err := ensureDirForSQLite(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	} else {
		dialector = postgres.Open(dsn)
	}

	dbLogger := logger.New(
		log.New(zl.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if sqliteDSN {
		// SQLite prefers a single writer; this also keeps :memory: databases alive.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(db, zl); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB, zl zerolog.Logger) error {
	m := db.Migrator()
	// Instances created before the unique index existed may collide with it.
	if m.HasTable(&model.Task{}) && m.HasColumn(&model.Task{}, "ParentTaskID") &&
		!m.HasIndex(&model.Task{}, taskParentTitleIndex) {
		removed, err := removeDuplicateInstances(context.Background(), db)
		if err != nil {
			return fmt.Errorf("remove duplicate instances: %w", err)
		}
		if removed > 0 {
			zl.Warn().Int64("removed", removed).Msg("removed duplicate recurring instances before adding unique index")
		}
	}

	return db.AutoMigrate(&model.Task{}, &model.SchedulerLock{})
}

// removeDuplicateInstances keeps the earliest instance of every (parent, title)
// group and deletes the rest.
func removeDuplicateInstances(ctx context.Context, db *gorm.DB) (int64, error) {
	type group struct {
		ParentTaskID uint
		Title        string
	}

	db = db.WithContext(ctx)
	var groups []group
	if err := db.Model(&model.Task{}).
		Select("parent_task_id, title").
		Where("parent_task_id IS NOT NULL").
		Group("parent_task_id, title").
		Having("COUNT(*) > 1").
		Scan(&groups).Error; err != nil {
		return 0, fmt.Errorf("find duplicate groups: %w", err)
	}

	var removed int64
	for _, g := range groups {
		var ids []uint
		if err := db.Model(&model.Task{}).
			Where("parent_task_id = ? AND title = ?", g.ParentTaskID, g.Title).
			Order("created_at ASC, id ASC").
			Pluck("id", &ids).Error; err != nil {
			return removed, fmt.Errorf("list duplicates of template %d: %w", g.ParentTaskID, err)
		}
		if len(ids) < 2 {
			continue
		}
		res := db.Where("id IN ?", ids[1:]).Delete(&model.Task{})
		if res.Error != nil {
			return removed, fmt.Errorf("delete duplicates of template %d: %w", g.ParentTaskID, res.Error)
		}
		removed += res.RowsAffected
	}
	return removed, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
