package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"taskflow/internal/bot"
	"taskflow/internal/config"
	"taskflow/internal/logger"
	"taskflow/internal/repository"
	"taskflow/internal/service"
)

func main() {
	dedupe := flag.Bool("dedupe", false, "remove duplicate generated instances and exit")
	generate := flag.Uint("generate", 0, "generate the due instance of one template `id` and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	if err := run(ctx, cfg, log, *dedupe, *generate); err != nil {
		log.Fatal().Err(err).Msg("taskflow stopped with error")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, dedupe bool, generateID uint) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.Database.URL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	lockRepo := repository.NewLockRepository(db)
	generator := service.NewGeneratorService(taskRepo, loc, log)

	switch {
	case dedupe:
		_, err := generator.RemoveDuplicates(ctx)
		return err
	case generateID > 0:
		inst, err := generator.GenerateForTask(ctx, generateID, time.Now())
		if err != nil {
			return err
		}
		log.Info().Uint("instance_id", inst.ID).Str("title", inst.Title).Msg("instance generated")
		return nil
	}

	var operator *bot.Bot
	opts := service.SchedulerOptions{
		LockID:   cfg.Scheduler.LockID,
		Interval: cfg.Scheduler.Interval,
		MinGap:   cfg.Scheduler.MinGap,
		DailyAt:  cfg.Scheduler.DailyAt,
		Location: loc,
	}
	if cfg.TelegramEnabled() {
		operator, err = bot.New(cfg.Telegram.Token, generator, log, bot.Options{
			AdminChatID: cfg.Telegram.AdminChatID,
			ReportEvery: cfg.Telegram.ReportEvery,
			Location:    loc,
		})
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		opts.Reporter = operator
	}

	scheduler := service.NewSchedulerService(lockRepo, generator, log, opts)
	if operator != nil {
		operator.SetScheduler(scheduler)
	}

	if cfg.ShouldStartScheduler() {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer scheduler.Stop()
	} else {
		log.Info().
			Str("environment", cfg.App.Environment).
			Bool("build_phase", cfg.Scheduler.BuildPhase).
			Msg("scheduler disabled")
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("sd_notify ready")
	}
	defer daemon.SdNotify(false, daemon.SdNotifyStopping)

	log.Info().Msg("taskflow started")
	if operator != nil {
		if err := operator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bot: %w", err)
		}
		return nil
	}
	<-ctx.Done()
	return nil
}
