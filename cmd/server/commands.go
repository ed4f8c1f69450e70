package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"kynara/internal/catalog"
	"kynara/internal/config"
	apphttp "kynara/internal/http"
	"kynara/internal/integrations/telegram"
	"kynara/internal/integrations/webhook"
	"kynara/internal/logger"
	"kynara/internal/metrics"
	"kynara/internal/notify"
	"kynara/internal/service/ledger"
	"kynara/internal/store/postgres"
	"kynara/internal/storefront"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kynara",
		Short:        "Kynara storefront session and order service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newHealthcheckCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newHealthcheckCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the /health endpoint of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = healthURL(config.Load().ListenAddr)
			}
			return probe(cmd.Context(), url, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "health endpoint (default derived from LISTEN_ADDR)")
	return cmd
}

func healthURL(listenAddr string) string {
	if strings.HasPrefix(listenAddr, ":") {
		listenAddr = "127.0.0.1" + listenAddr
	}
	return "http://" + listenAddr + "/health"
}

func probe(ctx context.Context, url string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	products, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	var sinks []storefront.Sink
	hook := webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout, cfg.WebhookMaxRetries, cfg.WebhookRetryBase, cfg.WebhookRetryMax)
	if hook.Enabled() {
		sinks = append(sinks, storefront.Sink{Name: "webhook", Publisher: hook})
	}
	notifier := telegram.NewNotifier(cfg.TelegramAPIBaseURL, cfg.TelegramBotToken, cfg.TelegramChatID)
	if notifier.Enabled() {
		sinks = append(sinks, storefront.Sink{Name: "telegram", Publisher: notifier})
	}
	dispatcher := storefront.NewDispatcher(log.With(slog.String("component", "events")), collector, 256, sinks...)

	scheduler := ledger.NewTimerScheduler()
	app, err := storefront.New(storefront.Options{
		Store:            st,
		Catalog:          products,
		TaxBasisPoints:   cfg.TaxBasisPoints,
		ShipAfter:        cfg.ShipAfter,
		DeliverAfter:     cfg.DeliverAfter,
		DeliveryEstimate: cfg.DeliveryEstimate,
		PaymentDelay:     cfg.PaymentDelay,
		Scheduler:        scheduler,
		Observer:         dispatcher,
		Metrics:          collector,
		Feed:             notify.NewFeed(cfg.NotificationLimit),
		Logger:           log,
	})
	if err != nil {
		return err
	}
	restored, err := app.Boot(ctx)
	if err != nil {
		return err
	}
	if restored {
		sess, _ := app.CurrentSession()
		log.Warn("session restored from persisted marker without re-authentication", slog.String("email", sess.Email))
	}

	srv := apphttp.NewServer(cfg, app, collector, reg, log)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15*time.Second + cfg.PaymentDelay,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("kynara API listening", slog.String("addr", cfg.ListenAddr), slog.String("store_mode", cfg.StoreMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	if dropped := scheduler.Stop(); dropped > 0 {
		log.Warn("pending fulfillment transitions dropped", slog.Int("count", dropped))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("order events not fully delivered", slog.String("error", err.Error()))
	}
	return nil
}
