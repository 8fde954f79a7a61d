package app

import (
	"io"
	"log/slog"

	"github.com/vk/foldrun/internal/engine"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *engine.Registry
	config   *Config
}

// New is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and a
// registry populated with validated engine bundles.
func New(outW io.Writer, cfg *Config, modules ...engine.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	reg := engine.New(logger)
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All engine modules registered.", "modules", len(modules), "engines", reg.Len())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *engine.Registry {
	return a.registry
}
