package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub/internal/bot"
	"taskhub/internal/config"
	"taskhub/internal/connector"
	"taskhub/internal/repository"
	"taskhub/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	registry := connector.DefaultRegistry(connector.Endpoints{
		CanvasBaseURL:    cfg.CanvasBaseURL,
		GraphBaseURL:     cfg.GraphBaseURL,
		GoogleEndpoint:   cfg.GoogleEndpoint,
		HandshakeBaseURL: cfg.HandshakeBaseURL,
	}, httpClient)

	syncOpts := service.SyncOptions{SourceTimeout: cfg.SourceTimeout}
	if refresher := service.NewOAuthRefresher(service.OAuthSettings{
		CanvasBaseURL:    cfg.CanvasBaseURL,
		Canvas:           service.OAuthClient(cfg.Canvas),
		MicrosoftTenant:  cfg.MicrosoftTenant,
		Microsoft:        service.OAuthClient(cfg.Microsoft),
		Google:           service.OAuthClient(cfg.Google),
		Handshake:        service.OAuthClient(cfg.Handshake),
		HandshakeBaseURL: cfg.HandshakeBaseURL,
	}, httpClient); refresher != nil {
		syncOpts.Refresher = refresher
	}

	mergeSvc := service.NewMergeService(recordRepo)
	syncSvc := service.NewSyncService(registry, credentialRepo, mergeSvc, syncOpts)
	summarySvc := service.NewSummaryService(recordRepo)

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Services{
		Users:       userRepo,
		Sync:        syncSvc,
		Summaries:   summarySvc,
		Tasks:       service.NewTaskService(recordRepo),
		Connections: service.NewConnectionService(credentialRepo, syncSvc),
		Reminders:   service.NewReminderService(summarySvc),
	}, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	if cfg.EnableBackgroundSync {
		syncScheduler := service.NewSyncScheduler(userRepo, syncSvc, cfg.SyncInterval, cfg.SyncRetryDelay)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := syncScheduler.Run(ctx); err != nil {
				log.Printf("sync scheduler: %v", err)
			}
		}()
		defer func() {
			syncScheduler.Stop()
			<-done
		}()
	}

	scheduler := service.NewSchedulerService(time.Local)
	digest := func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.SendDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("digest: %v", err)
		}
	}
	switch {
	case cfg.DigestTime != "":
		if _, err := scheduler.ScheduleDaily(cfg.DigestTime, digest); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
	case cfg.ReportInterval > 0:
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, digest); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("taskhub started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
