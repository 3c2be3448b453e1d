package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

var (
	ErrNotTemplate      = errors.New("task is not a recurring template")
	ErrSeriesEnded      = errors.New("recurring series has ended")
	ErrNotDue           = errors.New("recurring task is not due yet")
	ErrAlreadyGenerated = errors.New("instance for this occurrence already exists")
)

// TemplateStore is the persistence the generator needs.
// *repository.TaskRepository implements it.
type TemplateStore interface {
	FindRecurringTemplates(ctx context.Context) ([]model.Task, error)
	FindByID(ctx context.Context, id uint) (*model.Task, error)
	CreateInstance(ctx context.Context, task *model.Task) error
	UpdateBookkeeping(ctx context.Context, id uint, lastGenerated time.Time, next *time.Time) error
	RemoveDuplicateInstances(ctx context.Context) (int64, error)
}

// TemplateError records a template whose generation failed during a pass.
type TemplateError struct {
	TemplateID uint
	Message    string
}

// PassSummary describes one generation pass.
type PassSummary struct {
	StartedAt  time.Time
	Took       time.Duration
	Templates  int
	Generated  int
	Duplicates int
	Skipped    int
	Invalid    int
	Errors     []TemplateError
	Message    string
}

type outcome int

const (
	outcomeGenerated outcome = iota
	outcomeDuplicate
	outcomeInvalid
	outcomeEnded
	outcomeNotDue
	outcomeFailed
)

// GeneratorService materializes due occurrences of recurring templates.
type GeneratorService struct {
	store TemplateStore
	loc   *time.Location
	log   zerolog.Logger
}

func NewGeneratorService(store TemplateStore, loc *time.Location, log zerolog.Logger) *GeneratorService {
	if loc == nil {
		loc = time.UTC
	}
	return &GeneratorService{
		store: store,
		loc:   loc,
		log:   log.With().Str("component", "generator").Logger(),
	}
}

// GenerateDue runs one pass over all templates. A failing template is recorded
// in the summary and the pass moves on; only a failed template fetch or a
// cancelled context ends the pass with an error.
func (s *GeneratorService) GenerateDue(ctx context.Context, now time.Time) (PassSummary, error) {
	summary := PassSummary{StartedAt: now}
	started := time.Now()

	templates, err := s.store.FindRecurringTemplates(ctx)
	if err != nil {
		summary.finish(started)
		return summary, fmt.Errorf("fetch templates: %w", err)
	}
	summary.Templates = len(templates)

	for _, tpl := range templates {
		if err := ctx.Err(); err != nil {
			summary.finish(started)
			return summary, err
		}

		_, out, err := s.generate(ctx, tpl, now)
		switch out {
		case outcomeGenerated:
			summary.Generated++
		case outcomeDuplicate:
			summary.Duplicates++
		case outcomeInvalid:
			summary.Invalid++
			s.log.Debug().Uint("template_id", tpl.ID).Err(err).Msg("skipping template with invalid recurring config")
		case outcomeEnded, outcomeNotDue:
			summary.Skipped++
		case outcomeFailed:
			summary.Errors = append(summary.Errors, TemplateError{TemplateID: tpl.ID, Message: err.Error()})
			s.log.Error().Uint("template_id", tpl.ID).Err(err).Msg("recurring generation failed")
		}
	}

	summary.finish(started)
	return summary, nil
}

// GenerateForTask runs the due check and materialization for one template on demand.
func (s *GeneratorService) GenerateForTask(ctx context.Context, templateID uint, now time.Time) (*model.Task, error) {
	tpl, err := s.store.FindByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsTemplate() {
		return nil, fmt.Errorf("task %d: %w", templateID, ErrNotTemplate)
	}

	inst, out, err := s.generate(ctx, *tpl, now)
	switch out {
	case outcomeGenerated:
		return inst, nil
	case outcomeDuplicate:
		return nil, fmt.Errorf("task %d: %w", templateID, ErrAlreadyGenerated)
	case outcomeEnded:
		return nil, fmt.Errorf("task %d: %w", templateID, ErrSeriesEnded)
	case outcomeNotDue:
		return nil, fmt.Errorf("task %d: %w", templateID, ErrNotDue)
	default:
		return nil, fmt.Errorf("task %d: %w", templateID, err)
	}
}

// RemoveDuplicates deletes instances that repeat a (template, title) pair,
// keeping the earliest of each.
func (s *GeneratorService) RemoveDuplicates(ctx context.Context) (int64, error) {
	removed, err := s.store.RemoveDuplicateInstances(ctx)
	if err != nil {
		return removed, fmt.Errorf("remove duplicate instances: %w", err)
	}
	s.log.Info().Int64("removed", removed).Msg("duplicate instances removed")
	return removed, nil
}

func (s *GeneratorService) generate(ctx context.Context, tpl model.Task, now time.Time) (*model.Task, outcome, error) {
	cfg, err := recurrence.Parse(tpl.RecurringConfig)
	if err != nil {
		return nil, outcomeInvalid, err
	}
	if recurrence.IsEnded(tpl.LastGeneratedDate, cfg, tpl.RecurringEndDate, now) {
		return nil, outcomeEnded, nil
	}
	if !recurrence.ShouldGenerate(tpl.LastGeneratedDate, tpl.NextGenerationDate, now) {
		return nil, outcomeNotDue, nil
	}

	inst := BuildInstance(tpl, now, s.loc)
	out := outcomeGenerated
	if err := s.store.CreateInstance(ctx, &inst); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, outcomeFailed, err
		}
		// Another pass won the race for this occurrence.
		s.log.Info().Uint("template_id", tpl.ID).Str("title", inst.Title).Msg("instance already generated")
		out = outcomeDuplicate
	}

	// Walk the series in the configured zone. The next occurrence falls on a
	// later local day than the instance just generated.
	var next *time.Time
	if n, ok := recurrence.NextAfter(anchor(tpl, now).In(s.loc), cfg, endOfDay(now, s.loc)); ok {
		next = &n
	}
	if err := s.store.UpdateBookkeeping(ctx, tpl.ID, now, next); err != nil {
		return nil, outcomeFailed, err
	}

	if out == outcomeDuplicate {
		return nil, out, nil
	}
	ev := s.log.Info().Uint("template_id", tpl.ID).Uint("instance_id", inst.ID).Str("title", inst.Title)
	if next != nil {
		ev = ev.Time("next_generation", *next)
	}
	ev.Msg("generated recurring instance")
	return &inst, out, nil
}

// anchor is the date the series is counted from.
func anchor(tpl model.Task, now time.Time) time.Time {
	switch {
	case tpl.RecurringStartDate != nil:
		return *tpl.RecurringStartDate
	case tpl.NextGenerationDate != nil:
		return *tpl.NextGenerationDate
	default:
		return now
	}
}

// endOfDay is the last instant of t's calendar day in loc.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}

func (p *PassSummary) finish(started time.Time) {
	p.Took = time.Since(started)
	msg := fmt.Sprintf("Generated %d recurring task instance(s)", p.Generated)
	if p.Duplicates > 0 {
		msg += fmt.Sprintf(", %d already generated", p.Duplicates)
	}
	if len(p.Errors) > 0 {
		msg += fmt.Sprintf(", %d error(s)", len(p.Errors))
	}
	p.Message = msg
}
