package main

import (
	"context"
	"flag"
	"fmt"
	"guide-chat/auth"
	"guide-chat/contract"
	"guide-chat/infrastructure/push"
	"guide-chat/infrastructure/rest"
	"guide-chat/infrastructure/storage"
	"guide-chat/internal"
	"guide-chat/runtime"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run keeps every defer on the exit path, main only reports the error.
func run() error {
	open := flag.String("open", "", "Deep link to resolve and open, e.g. https://host/chat?guide=maya-lisbon")
	send := flag.String("send", "", "Message to send in the opened conversation")
	follow := flag.Bool("follow", false, "Keep the session alive and print pushed changes")
	envFile := flag.String("env", ".env", "Optional dotenv file")
	flag.Parse()

	// 1. Configuration & Logger
	config, err := internal.LoadConfig(*envFile)
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	session, err := auth.SessionFromToken(config.AuthToken)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	// 2. Journal (BadgerDB)
	db, err := storage.OpenJournalDB(config.JournalPath)
	if err != nil {
		return fmt.Errorf("journal opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing journal...")
		_ = db.Close()
	}()
	journal := storage.NewJournal(db, log)

	// 3. Collaborators
	backend := rest.NewClient(log, config.BackendURL, config.AuthToken, &http.Client{Timeout: config.RequestTimeout})
	var dialer contract.PushDialer
	if config.PushURL != "" {
		dialer = push.NewDialer(config.PushURL, config.AuthToken, 0)
	} else {
		log.Warn("PUSH_URL is empty, running on fetches only")
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the Engine
	engine := runtime.NewEngine(log, config.Runtime(), session, backend, dialer, journal)
	if err = engine.Start(ctx); err != nil {
		return fmt.Errorf("engine failed to start: %w", err)
	}
	defer engine.Logout()

	view := newView(os.Stdout, engine)
	if *open != "" {
		c, err := engine.OpenDeepLink(ctx, *open)
		if err != nil {
			return fmt.Errorf("open %s: %w", *open, err)
		}
		log.Info(fmt.Sprintf("Conversation %s opened", c.ID))
	}
	if *send != "" {
		delivery, err := engine.Send(ctx, *send, nil)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		m, err := delivery.Wait(ctx)
		if err != nil {
			log.Warn("Message not delivered", "clientID", m.ClientID, "error", err)
		}
	}

	view.Render()
	if *follow {
		unsubscribe := view.Follow()
		<-ctx.Done()
		unsubscribe()
		log.Info("Shutdown signal received")
	}
	return view.Summary(journal)
}
