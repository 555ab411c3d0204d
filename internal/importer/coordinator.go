package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/dataset"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/metrics"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
	"github.com/portillolaupa-ui/ucc-supervision/internal/parser"
	"github.com/portillolaupa-ui/ucc-supervision/internal/scoring"
)

// ErrRawRootMissing the raw data root does not exist
var ErrRawRootMissing = errors.New("raw data directory not found")

// Progress event types
const (
	EventStart     = "start"
	EventInfo      = "info"
	EventFileDone  = "file_done"
	EventFileError = "file_error"
	EventWarning   = "warning"
	EventDone      = "done"
	EventError     = "error"
)

// File result statuses
const (
	FileOK    = "ok"
	FileError = "error"
)

// lockFilePrefix office lock files left next to open workbooks
const lockFilePrefix = "~$"

// Coordinator runs one form step: discover, read, score and consolidate
type Coordinator struct {
	settings     config.FormSettings
	rawDir       string
	processedDir string
	reader       parser.Reader
	classifier   *scoring.Classifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Options coordinator dependencies
type Options struct {
	RawDir       string
	ProcessedDir string
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// ProgressEvent progress of a running step
type ProgressEvent struct {
	Type      string    `json:"type"`    // start/info/file_done/file_error/warning/done/error
	Message   string    `json:"message"` // human readable line
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// FileResult outcome of one source file
type FileResult struct {
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Year     string  `json:"year"`
	Month    string  `json:"month"`
	Region   string  `json:"region"`
	Status   string  `json:"status"`
	Rows     int     `json:"rows"`
	Score    float64 `json:"score,omitempty"`
	Category string  `json:"category,omitempty"`
	Error    string  `json:"error,omitempty"`
	Err      error   `json:"-"`
}

// StepReport outcome of one form step
type StepReport struct {
	Form        string        `json:"form"`
	Tag         string        `json:"tag"`
	Files       []FileResult  `json:"files"`
	FilesTotal  int           `json:"filesTotal"`
	FilesOK     int           `json:"filesOk"`
	FilesFailed int           `json:"filesFailed"`
	RowsWritten int           `json:"rowsWritten"`
	DatasetRows int           `json:"datasetRows"`
	Output      string        `json:"output,omitempty"`
	LongOutput  string        `json:"longOutput,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// stepContext mutable state of one run
type stepContext struct {
	ctx      context.Context
	start    time.Time
	progress chan<- ProgressEvent
	report   *StepReport
	batch    *dataset.Table
	long     *dataset.Table
}

// NewCoordinator creates the step for a form
func NewCoordinator(settings config.FormSettings, opts Options) (*Coordinator, error) {
	reader, err := parser.NewReader(settings)
	if err != nil {
		return nil, fmt.Errorf("form %s: %w", settings.ID, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		settings:     settings,
		rawDir:       opts.RawDir,
		processedDir: opts.ProcessedDir,
		reader:       reader,
		classifier:   scoring.NewFormClassifier(settings),
		logger:       logger.With(logging.TagKey, settings.Tag),
		metrics:      opts.Metrics,
	}, nil
}

// Name form id
func (c *Coordinator) Name() string { return c.settings.ID }

// Settings form settings of the step
func (c *Coordinator) Settings() config.FormSettings { return c.settings }

// OutputPath consolidated dataset path
func (c *Coordinator) OutputPath() string {
	return filepath.Join(c.processedDir, c.settings.Output.File)
}

// LongOutputPath long dataset path, empty when the form has none
func (c *Coordinator) LongOutputPath() string {
	if c.settings.Output.LongFile == "" {
		return ""
	}
	return filepath.Join(c.processedDir, c.settings.Output.LongFile)
}

// Import runs the step in the background, returning the progress channel.
// The last event is done (Data is the *StepReport) or error.
func (c *Coordinator) Import(ctx context.Context) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		if _, err := c.Process(ctx, progressChan); err != nil {
			c.sendProgress(progressChan, ProgressEvent{
				Type:      EventError,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
		}
	}()

	return progressChan
}

// Process runs the step synchronously. File failures are recorded in the report;
// a missing raw root, an unreadable dataset or a failed save is returned.
func (c *Coordinator) Process(ctx context.Context, progress chan<- ProgressEvent) (*StepReport, error) {
	sc := &stepContext{
		ctx:      ctx,
		start:    time.Now(),
		progress: progress,
		report:   &StepReport{Form: c.settings.ID, Tag: c.settings.Tag, Files: []FileResult{}},
		batch:    dataset.NewTable(),
		long:     dataset.NewTable(),
	}
	defer func() {
		if sc.report.Duration == 0 {
			sc.report.Duration = time.Since(sc.start)
		}
	}()

	c.logger.Info("Iniciando procesamiento", "raw", c.rawDir)
	c.sendProgress(progress, ProgressEvent{
		Type:    EventStart,
		Message: fmt.Sprintf("Procesando %s", c.settings.Tag),
		Data: map[string]string{
			"form": c.settings.ID,
			"raw":  c.rawDir,
		},
		Timestamp: time.Now(),
	})

	if info, err := os.Stat(c.rawDir); err != nil || !info.IsDir() {
		c.logger.Error("No existe la carpeta de datos", "raw", c.rawDir)
		return sc.report, fmt.Errorf("%w: %s", ErrRawRootMissing, c.rawDir)
	}

	if err := c.walk(sc); err != nil {
		return sc.report, err
	}

	if sc.batch.Len() == 0 {
		c.warn(sc, "No se procesó ninguna ficha.")
		c.done(sc)
		return sc.report, nil
	}

	if err := c.consolidate(sc); err != nil {
		c.logger.Error("Error al consolidar", "error", err)
		return sc.report, err
	}

	c.done(sc)
	return sc.report, nil
}

func (c *Coordinator) done(sc *stepContext) {
	r := sc.report
	r.Duration = time.Since(sc.start)
	c.logger.Info(fmt.Sprintf("Fichas procesadas: %d/%d", r.FilesOK, r.FilesTotal))
	c.sendProgress(sc.progress, ProgressEvent{
		Type:      EventDone,
		Message:   fmt.Sprintf("%s: %d/%d fichas procesadas", c.settings.Tag, r.FilesOK, r.FilesTotal),
		Data:      r,
		Timestamp: time.Now(),
	})
}

// walk visits raw/<year>/<month>/<region>/ in sorted order
func (c *Coordinator) walk(sc *stepContext) error {
	years, err := subdirs(c.rawDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", c.rawDir, err)
	}
	for _, year := range years {
		months, err := subdirs(filepath.Join(c.rawDir, year))
		if err != nil {
			return fmt.Errorf("list %s: %w", year, err)
		}
		for _, month := range months {
			c.logger.Info(fmt.Sprintf("Procesando: %s/%s", year, month))
			c.sendProgress(sc.progress, ProgressEvent{
				Type:      EventInfo,
				Message:   fmt.Sprintf("Procesando: %s/%s", year, month),
				Timestamp: time.Now(),
			})

			monthDir := filepath.Join(c.rawDir, year, month)
			regions, err := subdirs(monthDir)
			if err != nil {
				return fmt.Errorf("list %s/%s: %w", year, month, err)
			}
			for _, region := range regions {
				loc := model.Location{Year: year, Month: month, Region: strings.ToUpper(region)}
				if err := c.processRegion(sc, filepath.Join(monthDir, region), loc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Coordinator) processRegion(sc *stepContext, dir string, loc model.Location) error {
	files, err := c.matchFiles(dir)
	if err != nil {
		return fmt.Errorf("match %s: %w", dir, err)
	}
	if len(files) == 0 {
		c.warn(sc, fmt.Sprintf("%s/%s/%s: sin archivos", loc.Year, loc.Month, loc.Region))
		return nil
	}

	for _, path := range files {
		if err := sc.ctx.Err(); err != nil {
			return err
		}
		c.processFile(sc, path, loc)
	}
	return nil
}

// matchFiles files directly under dir matching the form pattern, lock files excluded
func (c *Coordinator) matchFiles(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), c.settings.Source.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), lockFilePrefix) {
			continue
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(files)
	return files, nil
}

func (c *Coordinator) processFile(sc *stepContext, path string, loc model.Location) {
	result := FileResult{
		Path:   path,
		Name:   filepath.Base(path),
		Year:   loc.Year,
		Month:  loc.Month,
		Region: loc.Region,
	}
	label := fmt.Sprintf("%s/%s/%s/%s", loc.Year, loc.Month, loc.Region, result.Name)

	form, err := c.reader.Read(path)
	if err == nil {
		err = c.appendRows(sc, loc, form, &result)
	}
	c.metrics.ObserveFile(c.settings.ID, err)

	if err != nil {
		result.Status = FileError
		result.Err = err
		result.Error = err.Error()
		c.logger.Error(fmt.Sprintf("Error en %s: %v", label, err))
		c.recordFileResult(sc, result)
		c.sendProgress(sc.progress, ProgressEvent{
			Type:      EventFileError,
			Message:   fmt.Sprintf("Error en %s: %v", label, err),
			Data:      result,
			Timestamp: time.Now(),
		})
		return
	}

	result.Status = FileOK
	logging.OK(c.logger, label+" procesado")
	c.recordFileResult(sc, result)
	c.sendProgress(sc.progress, ProgressEvent{
		Type:      EventFileDone,
		Message:   label + " procesado",
		Data:      result,
		Timestamp: time.Now(),
	})
}

func (c *Coordinator) appendRows(sc *stepContext, loc model.Location, form *model.Form, result *FileResult) error {
	switch c.settings.Kind {
	case config.KindFindings:
		rows, cols := FindingsRows(c.settings, loc, form)
		for _, r := range rows {
			sc.batch.Append(r, cols)
		}
		result.Rows = len(rows)
	default:
		row, cols, sum := ScoredRow(c.settings, c.classifier, loc, form)
		sc.batch.Append(row, cols)
		result.Rows = 1
		result.Score = sum.Percentage
		result.Category, _ = row[model.ColCategory].(string)

		if c.settings.Output.LongFile != "" {
			longRows, longCols := LongRows(c.settings, loc, form)
			for _, r := range longRows {
				sc.long.Append(r, longCols)
			}
		}
	}
	if result.Rows == 0 {
		return parser.ErrNoRows
	}
	return nil
}

// recordFileResult adds a file outcome to the report
func (c *Coordinator) recordFileResult(sc *stepContext, result FileResult) {
	r := sc.report
	r.Files = append(r.Files, result)
	r.FilesTotal++
	if result.Status == FileOK {
		r.FilesOK++
		r.RowsWritten += result.Rows
	} else {
		r.FilesFailed++
	}
}

// consolidate merges the batch into the existing dataset and rewrites it
func (c *Coordinator) consolidate(sc *stepContext) error {
	out := c.OutputPath()
	merged, err := c.mergeInto(out, sc.batch, c.settings.DedupKey)
	if err != nil {
		return err
	}
	sc.report.Output = out
	sc.report.DatasetRows = merged.Len()
	c.metrics.SetDatasetRows(c.settings.ID, merged.Len())
	logging.OK(c.logger, "Consolidado actualizado: "+out)
	c.logger.Info(fmt.Sprintf("Total de fichas acumuladas: %d", merged.Len()))

	if long := c.LongOutputPath(); long != "" && sc.long.Len() > 0 {
		key := append(append([]string(nil), c.settings.DedupKey...), ColItem)
		if _, err := c.mergeInto(long, sc.long, key); err != nil {
			return err
		}
		sc.report.LongOutput = long
		logging.OK(c.logger, "Detalle por ítem actualizado: "+long)
	}

	c.sendProgress(sc.progress, ProgressEvent{
		Type:    EventInfo,
		Message: fmt.Sprintf("Consolidado actualizado: %s (%d filas)", filepath.Base(out), merged.Len()),
		Data: map[string]any{
			"output": out,
			"rows":   merged.Len(),
		},
		Timestamp: time.Now(),
	})
	return nil
}

func (c *Coordinator) mergeInto(path string, batch *dataset.Table, key []string) (*dataset.Table, error) {
	sheet := c.settings.Output.Sheet
	prev, err := dataset.Load(path, sheet)
	if err != nil {
		return nil, err
	}
	merged := dataset.Merge(prev, batch, key)
	merged.OrderColumns(c.settings.CommonColumns)
	if err := merged.Save(path, sheet); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Coordinator) warn(sc *stepContext, msg string) {
	c.logger.Warn(msg)
	sc.report.Warnings = append(sc.report.Warnings, msg)
	c.sendProgress(sc.progress, ProgressEvent{
		Type:      EventWarning,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// sendProgress never blocks the step
func (c *Coordinator) sendProgress(ch chan<- ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	default:
		// channel full or nil: drop the event
	}
}

// subdirs sorted names of the directories directly under dir
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
