package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/muxlink/internal/config"
	"github.com/user/muxlink/internal/control"
	"github.com/user/muxlink/internal/history"
	"github.com/user/muxlink/internal/hub"
	"github.com/user/muxlink/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var journal *history.Journal
	if cfg.HistoryPath != "" {
		journal, err = history.Open(ctx, cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open command history: %w", err)
		}
		defer journal.Close()
	}

	// The hub and the coordinator reference each other: hub actions drive
	// the coordinator, coordinator callbacks feed the hub. Both are fully
	// wired before the transport starts, so neither side runs early.
	var coord *control.Coordinator
	var debouncer *control.ResizeDebouncer

	h := hub.New(cfg.Token, hub.Actions{
		Input: func(pane int, text string) error {
			return coord.SendKeys(pane, control.KeyNone, 0, text)
		},
		Key: func(pane int, code control.KeyCode, mods control.Modifiers) error {
			return coord.SendKeys(pane, code, mods, "")
		},
		Resize: func(pane, cols, rows int) {
			debouncer.Request(pane, cols, rows)
		},
		Split: func(pane int, horizontal bool) error {
			return coord.SplitPane(pane, horizontal)
		},
		NewWindow:  func(name string) error { return coord.NewWindow(name) },
		KillWindow: func(window int) error { return coord.KillWindow(window) },
		Detach:     func() error { return coord.Detach() },
	})

	transport := control.NewTransport(
		func(line string) { coord.HandleLine(line) },
		func(status int) { coord.HandleDisconnect(status) },
	)

	var options []control.CoordinatorOption
	if journal != nil {
		options = append(options, control.WithRecorder(journal))
	}
	coord = control.NewCoordinator(transport, control.Callbacks{
		OnWindowAdd: func(window, pane int, name string) {
			coord.Register(h.Surface(pane), pane)
			h.WindowAdded(window, pane, name)
		},
		OnWindowClose:   h.WindowClosed,
		OnWindowRenamed: h.WindowRenamed,
		OnPaneAdd: func(window, pane int) {
			coord.Register(h.Surface(pane), pane)
			h.PaneAdded(window, pane)
		},
		OnPaneRemove: func(window, pane int) {
			coord.Unregister(pane)
			h.PaneRemoved(window, pane)
		},
		OnDisconnect: func(status int) {
			h.Disconnected(status)
			slog.Info("multiplexer connection closed", "status", status)
			cancel()
		},
	}, options...)

	debouncer = control.NewResizeDebouncer(time.Duration(cfg.ResizeInterval), func(pane, cols, rows int) {
		if err := coord.ResizePane(pane, cols, rows); err != nil {
			slog.Warn("resize pane", "pane", pane, "error", err)
		}
	})
	defer debouncer.Stop()

	if cfg.RemoteHost != "" {
		err = transport.StartRemote(cfg.RemoteHost, cfg.Session, cfg.SSHPath)
	} else {
		err = transport.StartLocal(cfg.Session, cfg.TmuxPath)
	}
	if err != nil {
		return fmt.Errorf("start multiplexer: %w", err)
	}
	defer transport.Terminate()

	if err := coord.EnumerateWindows(); err != nil {
		return fmt.Errorf("enumerate windows: %w", err)
	}

	go h.Run(ctx)

	fmt.Printf("\nmuxlink running at http://localhost:%d/ws?token=%s\n\n", cfg.Port, cfg.Token)

	srv := server.New(cfg, h, journal)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
