package main

import (
	"context"
	"errors"
	"time"

	"github.com/portillolaupa-ui/ucc-supervision/internal/orchestrator"
	"github.com/portillolaupa-ui/ucc-supervision/internal/watcher"
)

// watchLoop reprocesses the forms of every debounced change until ctx is done
func watchLoop(ctx context.Context, a *app) error {
	w, err := watcher.New(a.cfg.RawDir(), a.forms, a.cfg.DebounceDelay(), a.logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes():
			if !ok {
				return nil
			}
			for _, form := range change.Forms {
				runWatched(ctx, a, form)
			}
		}
	}
}

// runWatched runs one form step, waiting while another run holds the orchestrator
func runWatched(ctx context.Context, a *app, form string) {
	retry := a.cfg.DebounceDelay()
	for {
		sum, err := a.orch.RunStep(ctx, orchestrator.TriggerWatch, form, nil)
		if errors.Is(err, orchestrator.ErrBusy) {
			a.logger.Warn("Procesamiento en curso, se reintentará", "form", form, "retry", retry.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		if err != nil {
			a.logger.Error("No se pudo procesar el anexo", "form", form, "error", err)
			return
		}
		if !sum.AllSucceeded() {
			a.logger.Warn("El paso terminó con error", "form", form, "run", sum.RunID)
		}
		return
	}
}
