package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

const (
	iconOK      = "✅"
	iconWarn    = "⚠️"
	iconIdle    = "🟢"
	iconRunning = "⏳"
	iconStopped = "⏹"
	timeLayout  = "2006-01-02 15:04 MST"
)

// botAPI is the part of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Generator is the manual-trigger surface of *service.GeneratorService.
type Generator interface {
	GenerateForTask(ctx context.Context, templateID uint, now time.Time) (*model.Task, error)
	RemoveDuplicates(ctx context.Context) (int64, error)
}

// Scheduler is the operator surface of *service.SchedulerService.
type Scheduler interface {
	State() service.State
	RunNow(ctx context.Context) (service.PassSummary, error)
	LockStatus(ctx context.Context) (*model.SchedulerLock, error)
}

type Options struct {
	AdminChatID int64

	// ReportEvery is the minimum spacing of pass reports. Zero disables throttling.
	ReportEvery time.Duration
	Location    *time.Location
	Clock       func() time.Time
}

// Bot serves maintenance commands to a single admin chat and posts pass reports there.
type Bot struct {
	api       botAPI
	generator Generator
	adminChat int64
	loc       *time.Location
	now       func() time.Time
	limiter   *rate.Limiter
	log       zerolog.Logger

	mu        sync.RWMutex
	scheduler Scheduler
}

func New(token string, generator Generator, log zerolog.Logger, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, generator, log, opts)
	b.log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return b, nil
}

func newBot(api botAPI, generator Generator, log zerolog.Logger, opts Options) *Bot {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	limit := rate.Inf
	if opts.ReportEvery > 0 {
		limit = rate.Every(opts.ReportEvery)
	}
	return &Bot{
		api:       api,
		generator: generator,
		adminChat: opts.AdminChatID,
		loc:       opts.Location,
		now:       opts.Clock,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log.With().Str("component", "bot").Logger(),
	}
}

// SetScheduler attaches the scheduler served by /status and /run. The
// scheduler reports to the bot, so it is built after it.
func (b *Bot) SetScheduler(s Scheduler) {
	b.mu.Lock()
	b.scheduler = s
	b.mu.Unlock()
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Int64("admin_chat", b.adminChat).Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Msg("handle message")
		}
	}
	return ctx.Err()
}

// ReportPass posts a pass summary to the admin chat. Passes that changed
// nothing are not reported, and reports closer together than ReportEvery are dropped.
func (b *Bot) ReportPass(ctx context.Context, summary service.PassSummary) {
	if summary.Generated == 0 && summary.Duplicates == 0 && len(summary.Errors) == 0 {
		return
	}
	if !b.limiter.Allow() {
		b.log.Debug().Str("summary", summary.Message).Msg("pass report throttled")
		return
	}
	if err := b.sendText(b.adminChat, formatSummary(summary, b.loc)); err != nil {
		b.log.Error().Err(err).Msg("send pass report")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || msg.Chat.ID != b.adminChat {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help for the list of commands.")
	}
	b.log.Info().Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command received")
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "run":
		return b.handleRun(ctx, msg)
	case "generate":
		return b.handleGenerate(ctx, msg)
	case "dedupe":
		return b.handleDedupe(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Recurring task scheduler</b>\n" +
		"• /status — scheduler state and lock\n" +
		"• /run — run a generation pass now\n" +
		"• /generate &lt;id&gt; — generate the due instance of one template\n" +
		"• /dedupe — remove duplicate instances\n" +
		"• /help — this message"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	s := b.currentScheduler()
	if s == nil {
		return b.sendText(msg.Chat.ID, "Scheduler is not configured.")
	}
	lock, err := s.LockStatus(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Could not read the lock: %s", iconWarn, escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatStatus(s.State(), lock, b.loc))
}

func (b *Bot) handleRun(ctx context.Context, msg *tgbotapi.Message) error {
	s := b.currentScheduler()
	if s == nil {
		return b.sendText(msg.Chat.ID, "Scheduler is not configured.")
	}
	summary, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, service.ErrPassInProgress):
		return b.sendText(msg.Chat.ID, iconRunning+" A generation pass is already running.")
	case err != nil:
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Pass failed: %s", iconWarn, escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatSummary(summary, b.loc))
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /generate &lt;template id&gt;")
	}
	inst, err := b.generator.GenerateForTask(ctx, id, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, generateErrorText(id, err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Created <b>#%d</b> %s", iconOK, inst.ID, escape(inst.Title)))
}

func (b *Bot) handleDedupe(ctx context.Context, msg *tgbotapi.Message) error {
	removed, err := b.generator.RemoveDuplicates(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Cleanup failed: %s", iconWarn, escape(err.Error())))
	}
	if removed == 0 {
		return b.sendText(msg.Chat.ID, iconOK+" No duplicate instances found.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("%s Removed %d duplicate instance(s).", iconOK, removed))
}

func (b *Bot) currentScheduler() Scheduler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scheduler
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func parseTaskID(arg string) (uint, error) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return uint(id), nil
}

func generateErrorText(id uint, err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Sprintf("Task #%d not found.", id)
	case errors.Is(err, service.ErrNotTemplate):
		return fmt.Sprintf("Task #%d is not a recurring template.", id)
	case errors.Is(err, service.ErrNotDue):
		return fmt.Sprintf("Task #%d is not due yet.", id)
	case errors.Is(err, service.ErrSeriesEnded):
		return fmt.Sprintf("The series of task #%d has ended.", id)
	case errors.Is(err, service.ErrAlreadyGenerated):
		return fmt.Sprintf("Today's instance of task #%d already exists.", id)
	case errors.Is(err, recurrence.ErrInvalidConfig):
		return fmt.Sprintf("%s Task #%d has an invalid recurring config.", iconWarn, id)
	default:
		return fmt.Sprintf("%s Generation failed: %s", iconWarn, escape(err.Error()))
	}
}

func formatSummary(summary service.PassSummary, loc *time.Location) string {
	var sb strings.Builder
	icon := iconOK
	if len(summary.Errors) > 0 {
		icon = iconWarn
	}
	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon, escape(summary.Message)))
	sb.WriteString(fmt.Sprintf("   🕒 %s · %d template(s) · %s\n",
		summary.StartedAt.In(loc).Format(timeLayout), summary.Templates, summary.Took.Round(time.Millisecond)))
	if summary.Skipped > 0 || summary.Invalid > 0 {
		sb.WriteString(fmt.Sprintf("   ⏭ %d not due, %d invalid\n", summary.Skipped, summary.Invalid))
	}
	for _, e := range summary.Errors {
		sb.WriteString(fmt.Sprintf("   • #%d: %s\n", e.TemplateID, escape(e.Message)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStatus(state service.State, lock *model.SchedulerLock, loc *time.Location) string {
	var sb strings.Builder
	icon := iconIdle
	switch state {
	case service.StateRunning:
		icon = iconRunning
	case service.StateStopped:
		icon = iconStopped
	}
	sb.WriteString(fmt.Sprintf("%s Scheduler: <b>%s</b>\n", icon, state))
	if lock.IsRunning {
		since := "unknown"
		if lock.LockedAt != nil {
			since = lock.LockedAt.In(loc).Format(timeLayout)
		}
		sb.WriteString(fmt.Sprintf("🔒 Lock held by <code>%s</code> since %s\n", escape(lock.LockedBy), since))
	} else {
		sb.WriteString("🔓 Lock is free\n")
	}
	if lock.LastRunDate.After(time.Unix(0, 0)) {
		sb.WriteString("Last pass: " + lock.LastRunDate.In(loc).Format(timeLayout))
	} else {
		sb.WriteString("Last pass: never")
	}
	return sb.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}
