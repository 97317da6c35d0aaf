package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathakanu/remindly/internal/bot"
	"github.com/pathakanu/remindly/internal/config"
	"github.com/pathakanu/remindly/internal/database"
	"github.com/pathakanu/remindly/internal/delivery"
	"github.com/pathakanu/remindly/internal/log"
	myopenai "github.com/pathakanu/remindly/internal/openai"
	"github.com/pathakanu/remindly/internal/scanner"
	"github.com/pathakanu/remindly/internal/server"
	"github.com/pathakanu/remindly/internal/store"
	"github.com/pathakanu/remindly/internal/telegram"
	"github.com/pathakanu/remindly/internal/twilio"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remindly",
	Short: "Remindly - chat reminders delivered on time",
	Long: `Remindly stores reminders sent over Telegram or WhatsApp and delivers
each one when it falls due. Without a subcommand it runs the service.`,
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the command handlers, the reminder scanner and the HTTP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()
		db, err := database.New(cfg.DatabaseURL, cfg.MaxOpenConns, logger)
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		defer database.Close(db)
		logger.Info().Msg("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig() (*config.Config, zerolog.Logger) {
	cfg := config.Load(log.New(log.Config{}))
	logger := log.New(log.ConfigFrom(cfg.LogLevel, cfg.LogFormat)).With().Str("app", "remindly").Logger()
	return cfg, logger
}

func serve() error {
	cfg, logger := loadConfig()

	db, err := database.New(cfg.DatabaseURL, cfg.MaxOpenConns, log.WithComponent(logger, "database"))
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	defer database.Close(db)
	reminderStore := store.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := bot.New(reminderStore, myopenai.New(cfg.OpenAIAPIKey), log.WithComponent(logger, "bot"))

	var (
		transport delivery.Transport
		listen    func(ctx context.Context)
		webhook   server.Handler
		verifier  server.Verifier
	)
	switch cfg.Channel() {
	case config.ChannelTelegram:
		tg, err := telegram.New(cfg.TelegramToken, log.WithComponent(logger, "telegram"))
		if err != nil {
			return err
		}
		transport = tg
		listen = func(ctx context.Context) { tg.Listen(ctx, handler) }
	case config.ChannelWhatsApp:
		transport = twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, log.WithComponent(logger, "twilio"))
		webhook = handler
		verifier = twilio.NewValidator(cfg.TwilioAuthToken, cfg.TwilioWebhookURL)
	default:
		return errors.New("no messaging channel configured: set TELEGRAM_TOKEN or the TWILIO_* variables")
	}

	sender := delivery.NewClient(transport, log.WithComponent(logger, "delivery"))
	reminderScanner := scanner.New(reminderStore, sender, log.WithComponent(logger, "scanner"))
	if err := reminderScanner.Start(); err != nil {
		return fmt.Errorf("scanner start: %w", err)
	}
	defer reminderScanner.Stop()

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.New(server.Options{
			Store:    reminderStore,
			Logger:   log.WithComponent(logger, "http"),
			Webhook:  webhook,
			Verifier: verifier,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("channel", string(cfg.Channel())).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	listenerDone := make(chan struct{})
	if listen != nil {
		go func() {
			defer close(listenerDone)
			listen(ctx)
		}()
	} else {
		close(listenerDone)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down...")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	// Handlers still running against the pool must finish before it is closed.
	<-listenerDone

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
