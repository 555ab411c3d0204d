package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/importer"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/metrics"
	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// app everything a command needs, built from config.toml
type app struct {
	cfg     *config.AppConfig
	info    config.LoadConfigInfo
	forms   []config.FormSettings
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *store.Store
	orch    *orchestrator.Orchestrator
}

// loadConfig reads config.toml and builds the logger
func loadConfig(opts *rootOptions) (*config.AppConfig, config.LoadConfigInfo, *slog.Logger, error) {
	cfg, info, err := config.LoadConfigWithInfo(opts.configPath)
	if err != nil {
		return nil, info, nil, fmt.Errorf("cargar configuración: %w", err)
	}

	levelName := cfg.Log.Level
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, info, nil, err
	}
	out := opts.logOut
	if out == nil {
		out = os.Stdout
	}
	logger := logging.New(out, level)
	slog.SetDefault(logger)

	if info.FromFile {
		logger.Debug("Configuración cargada", "path", info.Path)
	} else {
		logger.Debug("config.toml no encontrado, se usan valores por defecto")
	}
	return cfg, info, logger, nil
}

// newApp wires forms, coordinators, run log and orchestrator
func newApp(opts *rootOptions) (*app, error) {
	cfg, info, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if err := config.EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("crear carpetas de datos: %w", err)
	}

	forms, err := config.LoadForms(cfg.FormsDir(), cfg.Forms)
	if err != nil {
		return nil, fmt.Errorf("cargar anexos: %w", err)
	}

	m := metrics.New()
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("abrir historial: %w", err)
	}

	steps := make([]orchestrator.Step, 0, len(forms))
	for _, f := range forms {
		coord, err := importer.NewCoordinator(f, importer.Options{
			RawDir:       cfg.RawDir(),
			ProcessedDir: cfg.ProcessedDir(),
			Logger:       logger,
			Metrics:      m,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("anexo %s: %w", f.ID, err)
		}
		steps = append(steps, coord)
	}

	return &app{
		cfg:     cfg,
		info:    info,
		forms:   forms,
		logger:  logger,
		metrics: m,
		store:   st,
		orch: orchestrator.New(steps, orchestrator.Options{
			Store:   st,
			Logger:  logger,
			Metrics: m,
		}),
	}, nil
}

// Close releases the run log
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Error al cerrar el historial", "error", err)
	}
}
