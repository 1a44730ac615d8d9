package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/render/internal/cache"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
	"github.com/therealutkarshpriyadarshi/render/internal/database"
	"github.com/therealutkarshpriyadarshi/render/internal/logging"
)

// Root builds the renderctl command tree
func Root() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "renderctl",
		Short:         "Operate the render service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to the config file")

	rootCmd.AddCommand(
		plan(),
		proxyCmd(&configPath),
		renderCmd(&configPath),
		timelineCmd(&configPath),
	)
	return rootCmd
}

// env holds the connections a command needs
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	db     *database.DB
	repo   *database.Repository
	cache  *cache.Cache
}

// connect opens the database and, when reachable, the cache
func connect(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, db: db, repo: database.NewRepository(db, logger)}
	if c, err := cache.NewCache(cfg.Redis); err == nil {
		e.cache = c
	} else {
		logger.WithError(err).Warn("cache unavailable, continuing without it")
	}
	return e, nil
}

func (e *env) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
	e.db.Close()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
