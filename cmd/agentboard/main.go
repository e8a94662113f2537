package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agentboard/internal/backend"
	"agentboard/internal/board"
	"agentboard/internal/bus"
	"agentboard/internal/config"
	sqlitestore "agentboard/internal/store/sqlite"
	"agentboard/internal/transcript"
	"agentboard/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.agentboard/config.toml)")
	backendFlag := flag.String("backend", "", "backend base URL override")
	onlineFlag := flag.String("online", "", "online service base URL override")
	wsFlag := flag.String("ws", "", "websocket URL override")
	dbPathFlag := flag.String("db", "", "sqlite database path override (none disables persistence)")
	themeFlag := flag.String("theme", "", "color theme: dark or light")
	logPathFlag := flag.String("log", "", "log file path override")
	autosaveFlag := flag.Bool("autosave", true, "persist the board to the workspace database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A missing default config is fine; an explicit one must exist.
		if *configPath != "" || !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("load config: %v", err)
		}
		cfg = config.Config{}
	}

	// Stdout belongs to the terminal UI, so logs go to a file or nowhere.
	logger := log.New(io.Discard, "", log.LstdFlags)
	logPath := firstNonEmpty(*logPathFlag, cfg.LogPath)
	if logPath != "" {
		f, err := os.OpenFile(filepath.Clean(logPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer func() {
			_ = f.Close()
		}()
		logger = log.New(f, "", log.LstdFlags)
	}

	dbPath := firstNonEmpty(*dbPathFlag, cfg.Workspace.DBPath, "data/agentboard.db")
	var store *sqlitestore.Store
	if dbPath != "none" {
		dbPath = filepath.Clean(dbPath)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			log.Fatalf("create db directory: %v", err)
		}
		store, err = sqlitestore.Open(dbPath)
		if err != nil {
			log.Fatalf("open sqlite store: %v", err)
		}
		defer func() {
			_ = store.Close()
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if store != nil {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migrate sqlite: %v", err)
		}
	}

	autosave := *autosaveFlag
	if autosave {
		if ws, ok := cfg.Raw["workspace"].(map[string]any); ok {
			if v, ok := ws["autosave"].(bool); ok {
				autosave = v
			}
		}
	}

	baseURL := firstNonEmpty(*backendFlag, cfg.Backend.BaseURL, "http://localhost:8000")
	client := backend.NewClient(backend.Config{
		BaseURL:        baseURL,
		OnlineURL:      firstNonEmpty(*onlineFlag, cfg.Backend.OnlineURL),
		RequestTimeout: durationMS(cfg.Backend.RequestTimeoutMS, 0),
		ChatTimeout:    durationMS(cfg.Backend.ChatTimeoutMS, 0),
	})
	stream := backend.NewStream(backend.StreamConfig{
		URL:          firstNonEmpty(*wsFlag, cfg.Stream.URL),
		PingInterval: durationMS(cfg.Stream.PingIntervalMS, 0),
		ReconnectMin: durationMS(cfg.Stream.ReconnectMinMS, 0),
		ReconnectMax: durationMS(cfg.Stream.ReconnectMaxMS, 0),
	}, logger)

	app, err := ui.New(ui.Config{
		Backend:        client,
		Stream:         stream,
		Store:          store,
		Bus:            bus.New(0),
		Board:          board.New(),
		Log:            transcript.NewLog(),
		Theme:          firstNonEmpty(*themeFlag, cfg.UI.Theme, "dark"),
		GroupGap:       durationMS(cfg.UI.GroupGapMS, 0),
		Truncate:       cfg.UI.TruncateChars,
		HealthInterval: durationMS(cfg.Backend.HealthIntervalMS, 0),
		Autosave:       autosave,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("build ui: %v", err)
	}

	logger.Printf("agentboard started backend=%s db=%s autosave=%t", baseURL, dbPath, autosave)
	if err := app.Run(ctx); err != nil {
		log.Fatalf("run ui: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func durationMS(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}
