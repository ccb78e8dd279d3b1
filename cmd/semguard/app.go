package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semguard/cache"
	"github.com/c360studio/semguard/config"
	"github.com/c360studio/semguard/discover"
	"github.com/c360studio/semguard/engine"
	"github.com/c360studio/semguard/registry"
)

// app wires configuration, registry, cache and engine for one command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	holder *registry.Holder
	store  cache.Store
	engine *engine.Engine
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(flags *globalFlags, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader(logger)
	if flags.configPath != "" {
		loader = loader.WithProjectConfig(flags.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// loadRegistry loads the registry and flattens joined load errors into one
// message per line.
func loadRegistry(path string) (*registry.Registry, error) {
	reg, err := registry.Load(path)
	if err == nil {
		return reg, nil
	}

	var lines []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			lines = append(lines, "  "+e.Error())
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("load registry %s: %w", path, err)
	}
	return nil, fmt.Errorf("load registry %s:\n%s", path, strings.Join(lines, "\n"))
}

// newApp builds the shared components. metrics may be nil.
func newApp(ctx context.Context, flags *globalFlags, metrics prometheus.Registerer) (*app, error) {
	logger := newLogger(flags.logLevel)

	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	holder := registry.NewHolder(reg)

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	opts := []engine.Option{
		engine.WithHolder(holder),
		engine.WithConfig(cfg),
		engine.WithCache(store),
		engine.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}

	logger.Debug("Semguard ready",
		"version", Version,
		"repo_path", cfg.Repo.Path,
		"registry", cfg.Registry.Path,
		"cache", cfg.Cache.Backend)

	return &app{
		cfg:    cfg,
		logger: logger,
		holder: holder,
		store:  store,
		engine: engine.New(reg, opts...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close cache", "error", err)
	}
}

// files discovers the project files and narrows them to paths.
func (a *app) files(paths []string) ([]engine.File, error) {
	root := a.cfg.Repo.Path
	discovered, err := discover.Files(root, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	selected := discover.Select(root, discovered, relativeTo(root, paths))
	return engine.ReadFiles(root, selected)
}

// check validates paths, or only changed files and their dependents when
// changed is non-empty.
func (a *app) check(ctx context.Context, paths, changed []string) (*engine.BatchResult, error) {
	if len(changed) > 0 {
		all, err := a.files(nil)
		if err != nil {
			return nil, err
		}
		return a.engine.ValidateIncremental(ctx, relativeTo(a.cfg.Repo.Path, changed), all)
	}

	files, err := a.files(paths)
	if err != nil {
		return nil, err
	}
	return a.engine.ValidateBatch(ctx, files)
}

func exitStatus(batch *engine.BatchResult, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if batch != nil && batch.Failed() {
		return errViolations
	}
	return err
}
