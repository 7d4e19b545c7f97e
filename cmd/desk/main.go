package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AngelLink/internal/account"
	"AngelLink/internal/config"
	"AngelLink/internal/engine"
	"AngelLink/internal/httpserver"
	"AngelLink/internal/linking"
	"AngelLink/internal/model"
	"AngelLink/internal/notifier"
	"AngelLink/internal/recorder"
	"AngelLink/internal/remote"
	"AngelLink/internal/scheduler"
	"AngelLink/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] AngelLink desk starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Session state (credential + pending link)
	sess, err := session.Open(cfg.Storage.StatePath)
	if err != nil {
		log.Fatalf("[FATAL] open session state: %v", err)
	}
	defer sess.Close()
	if sess.Token() == "" && cfg.API.Token != "" {
		if err := sess.SetToken(cfg.API.Token); err != nil {
			log.Fatalf("[FATAL] store credential: %v", err)
		}
	}

	// Presenters: dashboard sockets, chat, process log
	hub := notifier.NewHub()
	ui := notifier.Multi{hub, notifier.LogPresenter{}}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		ui = append(ui, tn)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			log.Printf("[WARN] create sqlite dir: %v", err)
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Storage.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	client := remote.NewClient(cfg.API.BaseURL, sess,
		remote.WithTimeout(cfg.API.Timeout),
		remote.WithProxy(cfg.Proxy),
		remote.OnSessionExpired(func() {
			if err := ui.Present(notifier.Event{Type: notifier.EventLogin, Text: "Session expired. Please sign in again."}); err != nil {
				log.Printf("[WARN] present login: %v", err)
			}
		}),
	)

	store := account.NewStore(client, ui)
	gate := engine.NewGate(client, store, ui, rec)
	store.Subscribe(func(s model.Snapshot) { gate.Recompute(s) })

	links := linking.NewService(client, store, sess, ui, rec, linking.Options{
		Timeout:      cfg.Linking.Timeout,
		PollInterval: cfg.Linking.PollInterval,
		Settle:       cfg.Linking.Settle,
	})
	defer links.Shutdown()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup: resume a pending link, then load the profile
	if sess.Token() != "" {
		startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
		if _, err := links.ConsumeCarryover(startCtx); err != nil {
			log.Printf("[WARN] resume pending link: %v", err)
		}
		if _, err := store.RefreshProfile(startCtx); err != nil {
			log.Printf("[WARN] initial profile load: %v", err)
		}
		startCancel()
	} else {
		log.Println("[WARN] no credential configured, waiting for /login")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, store, links, gate, sess)
	if err := sched.RegisterAll(cfg.Schedule.ProfileCron, cfg.Schedule.FundsCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Local HTTP surface
	api := httpserver.New(links, store, gate, hub, cfg.Server.AllowedOrigin).
		AcceptCallbacksFrom(httpserver.OriginOf(cfg.API.BaseURL))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[INFO] http server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[FATAL] http server: %v", err)
		}
	}()

	log.Println("[INFO] AngelLink desk is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] AngelLink desk stopped")
}
