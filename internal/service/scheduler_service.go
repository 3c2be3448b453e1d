package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskflow/internal/model"
	"taskflow/internal/repository"
)

var (
	// ErrPassInProgress means another process (or tick) holds the scheduler lock.
	ErrPassInProgress = errors.New("generation pass already in progress")

	// ErrTooSoon means the last pass finished less than MinGap ago.
	ErrTooSoon = errors.New("generation pass ran too recently")
)

// releaseTimeout bounds the lock release after a pass, which runs even when
// the pass context is already cancelled.
const releaseTimeout = 10 * time.Second

// State is the lifecycle position of the scheduler loop.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateIdle
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// LockStore persists the cross-process lock row.
// *repository.LockRepository implements it.
type LockStore interface {
	Get(ctx context.Context, id string) (*model.SchedulerLock, error)
	CreateDefault(ctx context.Context, id string) (*model.SchedulerLock, error)
	TryAcquire(ctx context.Context, id, owner string, at time.Time) (bool, error)
	Release(ctx context.Context, id string, lastRun time.Time) error
}

// PassRunner executes one generation pass. *GeneratorService implements it.
type PassRunner interface {
	GenerateDue(ctx context.Context, now time.Time) (PassSummary, error)
}

// PassReporter receives the summary of every completed scheduled pass.
type PassReporter interface {
	ReportPass(ctx context.Context, summary PassSummary)
}

// Clock returns the current time.
type Clock func() time.Time

// SchedulerOptions configures a SchedulerService. Zero values get defaults.
type SchedulerOptions struct {
	LockID   string
	Interval time.Duration
	MinGap   time.Duration

	// DailyAt ("HH:MM") schedules one pass per day instead of every Interval.
	DailyAt  string
	Location *time.Location
	Clock    Clock

	// Owner identifies this process on the lock row.
	Owner    string
	Reporter PassReporter
}

// SchedulerService runs generation passes on a cron cadence, at most one at a
// time across all processes sharing the lock row.
type SchedulerService struct {
	cron     *cron.Cron
	locks    LockStore
	runner   PassRunner
	reporter PassReporter
	log      zerolog.Logger
	now      Clock

	lockID   string
	owner    string
	interval time.Duration
	minGap   time.Duration
	dailyAt  string

	mu     sync.Mutex
	state  State
	entry  cron.EntryID
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSchedulerService(locks LockStore, runner PassRunner, log zerolog.Logger, opts SchedulerOptions) *SchedulerService {
	if opts.LockID == "" {
		opts.LockID = "recurring-task-generation"
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Owner == "" {
		opts.Owner = defaultOwner()
	}

	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		locks:    locks,
		runner:   runner,
		reporter: opts.Reporter,
		log:      log,
		now:      opts.Clock,
		lockID:   opts.LockID,
		owner:    opts.Owner,
		interval: opts.Interval,
		minGap:   opts.MinGap,
		dailyAt:  opts.DailyAt,
	}
}

// Start registers the generation job, starts the cron loop and fires one
// tick right away. Calling Start on a running service is a no-op.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	s.runCtx, s.cancel = context.WithCancel(ctx)

	var err error
	if s.dailyAt != "" {
		s.entry, err = s.ScheduleDaily(s.dailyAt, s.job)
	} else {
		s.entry, err = s.ScheduleInterval(s.interval, s.job)
	}
	if err != nil {
		s.cancel()
		s.state = StateStopped
		s.mu.Unlock()
		return fmt.Errorf("schedule generation: %w", err)
	}
	s.cron.Start()
	s.state = StateIdle
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.job()
	}()

	s.log.Info().
		Str("owner", s.owner).
		Dur("interval", s.interval).
		Str("daily_at", s.dailyAt).
		Dur("min_gap", s.minGap).
		Msg("scheduler started")
	return nil
}

// Stop halts the cadence and waits for an in-flight pass to finish.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	entry := s.entry
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.cron.Remove(entry)
	cancel()

	s.mu.Lock()
	s.state = StateStopped
	s.runCtx = nil
	s.cancel = nil
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
}

// State reports the loop's lifecycle position.
func (s *SchedulerService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	// Convert to cron spec: every N seconds.
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// Tick runs a pass unless another one holds the lock or the last pass
// finished less than MinGap ago.
func (s *SchedulerService) Tick(ctx context.Context) (PassSummary, error) {
	return s.runPass(ctx, true)
}

// RunNow runs a pass ignoring MinGap. The lock is still honored.
func (s *SchedulerService) RunNow(ctx context.Context) (PassSummary, error) {
	return s.runPass(ctx, false)
}

// LockStatus returns the lock row, creating it if missing.
func (s *SchedulerService) LockStatus(ctx context.Context) (*model.SchedulerLock, error) {
	return s.loadLock(ctx)
}

func (s *SchedulerService) job() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	summary, err := s.Tick(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		s.log.Debug().Msg("tick skipped: pass in progress elsewhere")
	case errors.Is(err, ErrTooSoon):
		s.log.Debug().Msg("tick skipped: last pass too recent")
	case err != nil:
		s.log.Error().Err(err).Msg("generation pass failed")
	default:
		if s.reporter != nil {
			s.reporter.ReportPass(ctx, summary)
		}
	}
}

func (s *SchedulerService) runPass(ctx context.Context, respectGap bool) (summary PassSummary, err error) {
	now := s.now()
	lock, err := s.loadLock(ctx)
	if err != nil {
		return summary, err
	}
	if lock.IsRunning {
		return summary, ErrPassInProgress
	}
	if respectGap && s.minGap > 0 && now.Sub(lock.LastRunDate) < s.minGap {
		return summary, ErrTooSoon
	}

	acquired, err := s.locks.TryAcquire(ctx, s.lockID, s.owner, now)
	if err != nil {
		return summary, err
	}
	if !acquired {
		return summary, ErrPassInProgress
	}
	s.transition(StateIdle, StateRunning)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation pass panicked: %v", r)
			s.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in generation pass")
		}
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := s.locks.Release(relCtx, s.lockID, s.now()); relErr != nil {
			s.log.Error().Err(relErr).Msg("release scheduler lock")
			err = errors.Join(err, relErr)
		}
		s.transition(StateRunning, StateIdle)
	}()

	summary, err = s.runner.GenerateDue(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("generation pass: %w", err)
	}

	ev := s.log.Info()
	if len(summary.Errors) > 0 {
		ev = s.log.Warn()
	}
	ev.Int("templates", summary.Templates).
		Int("generated", summary.Generated).
		Int("duplicates", summary.Duplicates).
		Int("errors", len(summary.Errors)).
		Dur("took", summary.Took).
		Msg(summary.Message)
	return summary, nil
}

// loadLock reads the lock row and creates the default one on first use.
func (s *SchedulerService) loadLock(ctx context.Context) (*model.SchedulerLock, error) {
	lock, err := s.locks.Get(ctx, s.lockID)
	if errors.Is(err, repository.ErrNotFound) {
		lock, err = s.locks.CreateDefault(ctx, s.lockID)
	}
	if err != nil {
		return nil, fmt.Errorf("read scheduler lock: %w", err)
	}
	return lock, nil
}

func (s *SchedulerService) transition(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "/" + uuid.NewString()
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
