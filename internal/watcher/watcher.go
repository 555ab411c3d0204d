// Package watcher reports which forms have new or changed files in the raw tree.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
)

const (
	// changeChannelBuffer size of the change channel
	changeChannelBuffer = 16
	lockFilePrefix      = "~$"
)

// Change forms with modified files since the previous change
type Change struct {
	Forms []string
	Paths []string
}

// Watcher watches the raw tree and emits debounced changes per form
type Watcher struct {
	root     string
	forms    []config.FormSettings
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	// pending paths by form id, flushed once no event arrived for a debounce period
	pendingMu sync.Mutex
	pending   map[string]map[string]bool
	lastEvent time.Time

	hashMu sync.Mutex
	hashes map[string]string

	changes chan Change
	dropped atomic.Int64
}

// New creates a watcher over root for the given forms
func New(root string, forms []config.FormSettings, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		root:     root,
		forms:    forms,
		debounce: debounce,
		fsw:      fsw,
		logger:   logger,
		pending:  make(map[string]map[string]bool),
		hashes:   make(map[string]string),
		changes:  make(chan Change, changeChannelBuffer),
	}, nil
}

// Changes channel of debounced changes; closed when the watcher stops
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start records the current files and begins watching
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.root, false); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Vigilando carpeta de datos", "raw", w.root, "debounce", w.debounce.String())
	return nil
}

// Stop stops the watcher; Changes is closed by the event loop
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// Dropped number of changes dropped because nobody was reading
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// addWatchesRecursive watches every directory under root. Existing files are
// hashed as the baseline; with queue set they are queued instead, for directories
// created after Start whose files were written before the watch was added.
func (w *Watcher) addWatchesRecursive(root string, queue bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if queue {
				w.queue(path)
			} else {
				w.changed(path)
			}
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("No se pudo vigilar la carpeta", "path", path, "error", err)
		}
		return nil
	})
}

// processEvents handles fsnotify events and flushes pending forms after a quiet period
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.changes)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Error del vigilante", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.hashMu.Lock()
		delete(w.hashes, path)
		w.hashMu.Unlock()
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addWatchesRecursive(path, true); err != nil {
				w.logger.Warn("No se pudo vigilar la carpeta nueva", "path", path, "error", err)
			}
		}
		return
	}

	w.queue(path)
}

// queue marks path pending for every form whose pattern matches its name
func (w *Watcher) queue(path string) {
	forms := w.formsFor(path)
	if len(forms) == 0 {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.lastEvent = time.Now()
	for _, id := range forms {
		if w.pending[id] == nil {
			w.pending[id] = make(map[string]bool)
		}
		w.pending[id][path] = true
	}
	w.logger.Debug("Cambio detectado", "path", path, "forms", strings.Join(forms, ","))
}

// formsFor ids of the forms whose source pattern matches the file name
func (w *Watcher) formsFor(path string) []string {
	name := filepath.Base(path)
	if strings.HasPrefix(name, lockFilePrefix) || strings.HasPrefix(name, ".") {
		return nil
	}
	var ids []string
	for _, f := range w.forms {
		if ok, _ := doublestar.Match(f.Source.Pattern, name); ok {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.debounce {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]map[string]bool)
	w.pendingMu.Unlock()

	var change Change
	modified := make(map[string]bool)
	for _, f := range w.forms {
		form := false
		for p := range toProcess[f.ID] {
			is, seen := modified[p]
			if !seen {
				is = w.changed(p)
				modified[p] = is
				if is {
					change.Paths = append(change.Paths, p)
				}
			}
			form = form || is
		}
		if form {
			change.Forms = append(change.Forms, f.ID)
		}
	}
	if len(change.Forms) == 0 {
		return
	}
	sort.Strings(change.Paths)
	w.sendChange(change)
}

// changed hashes path and reports whether its content differs from the last seen version
func (w *Watcher) changed(path string) bool {
	hash, err := fileHash(path)
	if err != nil {
		return false
	}
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	old, had := w.hashes[path]
	w.hashes[path] = hash
	return !had || old != hash
}

func (w *Watcher) sendChange(c Change) {
	select {
	case w.changes <- c:
		w.logger.Info("Cambios detectados", "forms", strings.Join(c.Forms, ","), "files", len(c.Paths))
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("Canal de cambios lleno, se descarta el evento", "total_dropped", n)
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
