package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"streamflix/api"
	"streamflix/config"
	"streamflix/handlers"
	"streamflix/services/accounts"
	"streamflix/services/catalog"
	"streamflix/services/localstore"
	"streamflix/services/notify"
	"streamflix/services/ratings"
	"streamflix/services/remotestore"
	"streamflix/services/session"
	statesync "streamflix/services/sync"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("StreamFlix sync engine starting...")

	configPath := os.Getenv("STREAMFLIX_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// File logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
		}
	}

	// Stores
	local, err := localstore.NewStore(settings.Storage.Directory)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}

	ctx := context.Background()
	remote, err := remotestore.Open(ctx, settings.Remote.Driver, settings.Remote.DSN)
	if err != nil {
		log.Fatalf("failed to open remote store: %v", err)
	}
	defer remote.Close()

	// Accounts and session
	accountsSvc, err := accounts.NewService(settings.Storage.Directory)
	if err != nil {
		log.Fatalf("failed to init accounts: %v", err)
	}
	sessionSvc, err := session.NewService(settings.Storage.Directory, accountsSvc)
	if err != nil {
		log.Fatalf("failed to init session: %v", err)
	}

	// Notifications go to the log and to the client-facing feed
	feed := notify.NewFeed(100)
	sink := notify.Fanout{notify.LogSink{}, feed}

	// Synchronizers follow the session identity
	watchlistSync := statesync.NewWatchlist(local, remote, sink)
	historySync := statesync.NewHistory(local, remote, sink)
	sessionSvc.Subscribe(watchlistSync.SetOwner)
	sessionSvc.Subscribe(historySync.SetOwner)

	// Catalog and ratings
	catalogSvc := catalog.NewService(settings.Catalog.TMDBAPIKey, settings.Catalog.Language)
	if !catalogSvc.Configured() {
		log.Println("Warning: TMDB API key not configured, catalog endpoints will return 503")
	}
	ratingsSvc := ratings.NewService(settings.Ratings.OMDBAPIKey)

	// HTTP layer
	router := mux.NewRouter()
	api.Register(
		router,
		handlers.NewWatchlistHandler(watchlistSync),
		handlers.NewHistoryHandler(historySync),
		handlers.NewSessionHandler(accountsSvc, sessionSvc),
		handlers.NewCatalogHandler(catalogSvc, ratingsSvc),
		handlers.NewNotificationsHandler(feed),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// Let in-flight hydrations and remote mirrors settle before closing the
	// database.
	watchlistSync.Flush()
	historySync.Flush()

	log.Println("Shutdown complete")
}
