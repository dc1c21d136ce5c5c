package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"floorbot/internal/bus"
	"floorbot/internal/channel"
	"floorbot/internal/chatbot"
	"floorbot/internal/config"
	"floorbot/internal/content"
	"floorbot/internal/domain"
	"floorbot/internal/metrics"
	"floorbot/internal/server"
)

const drainTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, the conversation workers and the admin API",
		Long:  "Starts the HTTP server and the workers that answer WhatsApp customers. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.WhatsApp.Enabled {
		return errors.New("whatsapp is disabled in the config; nothing to serve")
	}

	log, closer, err := config.NewLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = log

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	catalog := content.Default()
	if cfg.Content.Path != "" {
		if catalog, err = content.Load(cfg.Content.Path); err != nil {
			return fmt.Errorf("content: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	messageBus := bus.New(cfg.General.BusBuffer, log)
	m.RegisterQueueDepth(messageBus.Len)

	sender := channel.NewWhatsApp(channel.WhatsAppConfig{
		APIBase:       cfg.WhatsApp.APIBase,
		APIVersion:    cfg.WhatsApp.APIVersion,
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		Timeout:       time.Duration(cfg.WhatsApp.TimeoutSeconds) * time.Second,
		RatePerSecond: cfg.WhatsApp.SendRatePerSecond,
		Burst:         cfg.WhatsApp.SendBurst,
		Logger:        log,
	})

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}

	machine, err := chatbot.NewMachine(chatbot.Config{
		Store:    st,
		Sender:   sender,
		Notifier: notifier,
		Catalog:  catalog,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	worker := chatbot.NewWorker(chatbot.WorkerConfig{
		Bus:         messageBus,
		Handler:     machine,
		Logger:      log,
		Metrics:     m,
		Concurrency: cfg.General.Workers,
	})
	// Workers outlive the signal so queued messages are still answered.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	srv, err := server.New(server.Config{
		Addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		WebhookPath: cfg.WhatsApp.WebhookPath,
		Webhook: channel.NewWebhook(channel.WebhookConfig{
			AppSecret:   cfg.WhatsApp.AppSecret,
			VerifyToken: cfg.WhatsApp.VerifyToken,
			Bus:         messageBus,
			Logger:      log,
			Metrics:     m,
		}),
		Store: st,
		Admin: server.AdminAuth{
			Enabled:      cfg.Server.Admin.Enabled,
			Username:     cfg.Server.Admin.Username,
			PasswordHash: cfg.Server.Admin.PasswordHash,
		},
		Metrics:     m,
		MetricsPath: cfg.Metrics.Endpoint,
		Logger:      log,
		Version:     version,
	})
	if err != nil {
		return err
	}

	log.Info("floorbot started", "version", version, "store", cfg.Store.Driver, "workers", cfg.General.Workers)
	serveErr := srv.Run(ctx)

	log.Info("draining inbound queue", "pending", messageBus.Len())
	messageBus.Close()
	select {
	case <-workerDone:
		log.Info("shutdown complete")
	case <-time.After(drainTimeout):
		log.Warn("drain timed out, cancelling in-flight messages")
		cancelWorkers()
		<-workerDone
	}
	return serveErr
}

func newNotifier(cfg *config.Config, log *slog.Logger) (domain.Notifier, error) {
	t := cfg.Notify.Telegram
	if !t.Enabled {
		log.Info("operator notifications disabled")
		return domain.NopNotifier{}, nil
	}
	n, err := channel.NewTelegramNotifier(channel.TelegramNotifierConfig{
		Token:   t.Token,
		ChatIDs: t.ChatIDs,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	log.Info("telegram notifications enabled", "chats", len(t.ChatIDs))
	return n, nil
}
