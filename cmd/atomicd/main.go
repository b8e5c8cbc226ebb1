// Command atomicd serves a demo JSON:API atomic operations endpoint over a
// small music-catalog schema, with existence checks backed by SQLite.
package main

import (
	"database/sql"
	"net/http"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/henkedude/atomicops"
	"github.com/henkedude/atomicops/server"
	"github.com/henkedude/atomicops/sqlstore"
)

type config struct {
	Listen    string  `toml:"listen"`
	LogLevel  string  `toml:"log_level"`
	Database  string  `toml:"database"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

func defaultConfig() config {
	return config{
		Listen:    ":8080",
		LogLevel:  "info",
		Database:  "catalog.db",
		RateLimit: 50,
		RateBurst: 100,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func applyLogLevel(logger *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("log_level", level).Warn("unknown log level, keeping current")
		return
	}
	logger.SetLevel(parsed)
}

// watchConfig re-applies the log level whenever the config file changes.
func watchConfig(path string, logger *logrus.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("config watching disabled")
		return
	}
	if err := watcher.Add(path); err != nil {
		logger.WithError(err).Warn("config watching disabled")
		return
	}

	go func() {
		for event := range watcher.Events {
			if !event.Has(fsnotify.Write) {
				continue
			}
			cfg, err := loadConfig(path)
			if err != nil {
				logger.WithError(err).Warn("config reload failed")
				continue
			}
			applyLogLevel(logger, cfg.LogLevel)
			logger.WithField("log_level", cfg.LogLevel).Info("config reloaded")
		}
	}()
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS music_tracks (id TEXT PRIMARY KEY, title TEXT)`,
		`CREATE TABLE IF NOT EXISTS performers (id TEXT PRIMARY KEY, name TEXT)`,
		`CREATE TABLE IF NOT EXISTS playlists (id INTEGER PRIMARY KEY, name TEXT)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func main() {
	configPath := pflag.String("config", "atomicd.toml", "path to the TOML configuration file")
	listen := pflag.String("listen", "", "listen address, overrides the config file")
	pflag.Parse()

	logger := logrus.New()

	cfg, err := loadConfig(*configPath)
	if err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Fatal("failed to load config")
	}
	applyLogLevel(logger, cfg.LogLevel)
	if err == nil {
		watchConfig(*configPath, logger)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	store := sqlstore.New(db, map[string]sqlstore.Table{
		"musicTracks": {Name: "music_tracks"},
		"performers":  {Name: "performers"},
		"playlists":   {Name: "playlists"},
	})

	schema := catalogSchema()
	if err := schema.Check(); err != nil {
		logger.WithError(err).Fatal("invalid resource schema")
	}

	deserializer := atomicops.NewRequestDeserializer(
		schema,
		atomicops.WithExistenceChecker(store),
		atomicops.WithLogger(logger),
	)

	handler := server.New(deserializer, echoExecutor{},
		server.WithLogger(logger),
		server.WithMiddleware(server.RequestLogging(logger)),
		server.WithMiddleware(server.RateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst)),
	)

	logger.WithField("listen", cfg.Listen).Info("atomicd listening")
	if err := http.ListenAndServe(cfg.Listen, handler); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
