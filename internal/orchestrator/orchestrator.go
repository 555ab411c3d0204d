// Package orchestrator runs the enabled form steps in order and keeps the run log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/importer"
	"github.com/portillolaupa-ui/ucc-supervision/internal/logging"
	"github.com/portillolaupa-ui/ucc-supervision/internal/metrics"
	"github.com/portillolaupa-ui/ucc-supervision/internal/store"
)

// ErrBusy another run holds the pipeline
var ErrBusy = errors.New("a run is already in progress")

// State of one step
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Run triggers
const (
	TriggerCLI    = "cli"
	TriggerAPI    = "api"
	TriggerUpload = "upload"
	TriggerWatch  = "watch"
)

// Step one unit of the pipeline, usually a form coordinator
type Step interface {
	Name() string
	Process(ctx context.Context, progress chan<- importer.ProgressEvent) (*importer.StepReport, error)
}

// StepResult outcome of one step
type StepResult struct {
	Name        string               `json:"name"`
	State       State                `json:"state"`
	Report      *importer.StepReport `json:"report,omitempty"`
	Error       string               `json:"error,omitempty"`
	Err         error                `json:"-"`
	StartedAt   time.Time            `json:"startedAt"`
	CompletedAt time.Time            `json:"completedAt"`
}

// Summary outcome of a run
type Summary struct {
	RunID       string       `json:"runId"`
	Trigger     string       `json:"trigger"`
	Steps       []StepResult `json:"steps"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Total number of steps
func (s *Summary) Total() int { return len(s.Steps) }

// OK number of succeeded steps
func (s *Summary) OK() int {
	n := 0
	for _, st := range s.Steps {
		if st.State == StateSucceeded {
			n++
		}
	}
	return n
}

// AllSucceeded reports whether every step succeeded
func (s *Summary) AllSucceeded() bool { return s.OK() == s.Total() }

// ExitCode process exit status for the CLI. File-level failures do not count.
func (s *Summary) ExitCode() int {
	if s.AllSucceeded() {
		return 0
	}
	return 1
}

// Orchestrator runs steps sequentially, one run at a time
type Orchestrator struct {
	mu      sync.Mutex
	steps   []Step
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Options orchestrator dependencies; all optional
type Options struct {
	Store   *store.Store
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New creates an orchestrator over steps, kept in the given order
func New(steps []Step, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		steps:   append([]Step(nil), steps...),
		store:   opts.Store,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Steps configured steps in run order
func (o *Orchestrator) Steps() []Step {
	return append([]Step(nil), o.steps...)
}

// Find returns the step named name
func (o *Orchestrator) Find(name string) (Step, error) {
	for _, s := range o.steps {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", config.ErrUnknownForm, name)
}

// Run executes every step. It returns ErrBusy without waiting when a run is in progress.
// Step failures are reported in the summary, never returned.
func (o *Orchestrator) Run(ctx context.Context, trigger string, progress chan<- importer.ProgressEvent) (*Summary, error) {
	if !o.mu.TryLock() {
		return nil, ErrBusy
	}
	defer o.mu.Unlock()
	return o.run(ctx, trigger, o.steps, progress), nil
}

// RunStep executes a single step by name, under the same lock as Run
func (o *Orchestrator) RunStep(ctx context.Context, trigger, name string, progress chan<- importer.ProgressEvent) (*Summary, error) {
	step, err := o.Find(name)
	if err != nil {
		return nil, err
	}
	if !o.mu.TryLock() {
		return nil, ErrBusy
	}
	defer o.mu.Unlock()
	return o.run(ctx, trigger, []Step{step}, progress), nil
}

func (o *Orchestrator) run(ctx context.Context, trigger string, steps []Step, progress chan<- importer.ProgressEvent) *Summary {
	sum := &Summary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: o.now(),
		Steps:     make([]StepResult, len(steps)),
	}
	for i, s := range steps {
		sum.Steps[i] = StepResult{Name: s.Name(), State: StatePending}
	}

	if o.store != nil {
		if err := o.store.CreateRun(sum.RunID, trigger, sum.StartedAt); err != nil {
			o.logger.Warn("No se pudo registrar la ejecución", "error", err)
		}
	}

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			now := o.now()
			sum.Steps[i] = StepResult{Name: s.Name(), State: StateFailed, Err: err, Error: err.Error(), StartedAt: now, CompletedAt: now}
		} else {
			sum.Steps[i] = o.runStep(ctx, s, progress)
		}
		o.persistStep(sum.RunID, sum.Steps[i])
	}

	sum.CompletedAt = o.now()
	status := store.RunSucceeded
	if !sum.AllSucceeded() {
		status = store.RunFailed
	}
	if o.store != nil {
		if err := o.store.FinishRun(sum.RunID, status, sum.Total(), sum.OK(), sum.CompletedAt); err != nil {
			o.logger.Warn("No se pudo cerrar la ejecución", "error", err)
		}
	}

	o.logger.Info(fmt.Sprintf("Resumen: %d/%d pasos completados", sum.OK(), sum.Total()))
	return sum
}

// runStep executes one step, turning a panic into a failed result
func (o *Orchestrator) runStep(ctx context.Context, s Step, progress chan<- importer.ProgressEvent) (res StepResult) {
	res = StepResult{Name: s.Name(), State: StateRunning, StartedAt: o.now()}
	o.logger.Info("Iniciando paso", "step", s.Name())

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Err = fmt.Errorf("panic in step %s: %v", s.Name(), r)
			res.Error = res.Err.Error()
			o.logger.Error(res.Error, "stack", string(debug.Stack()))
		}
		res.CompletedAt = o.now()
		o.metrics.ObserveStep(res.Name, string(res.State), res.CompletedAt.Sub(res.StartedAt))
	}()

	report, err := s.Process(ctx, progress)
	res.Report = report
	if err != nil {
		res.State = StateFailed
		res.Err = err
		res.Error = err.Error()
		o.logger.Error(fmt.Sprintf("Paso %s falló: %v", s.Name(), err))
		return res
	}

	res.State = StateSucceeded
	logging.OK(o.logger, fmt.Sprintf("Paso %s completado", s.Name()))
	return res
}

func (o *Orchestrator) persistStep(runID string, res StepResult) {
	if o.store == nil {
		return
	}
	rec := store.StepRecord{
		RunID:       runID,
		Form:        res.Name,
		State:       string(res.State),
		Error:       res.Error,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	var files []store.FileRecord
	if r := res.Report; r != nil {
		rec.FilesTotal = r.FilesTotal
		rec.FilesOK = r.FilesOK
		rec.FilesFailed = r.FilesFailed
		rec.RowsWritten = r.RowsWritten
		rec.DatasetRows = r.DatasetRows
		for _, f := range r.Files {
			files = append(files, store.FileRecord{
				Form:   res.Name,
				Path:   f.Path,
				Year:   f.Year,
				Month:  f.Month,
				Region: f.Region,
				Status: f.Status,
				Rows:   f.Rows,
				Error:  f.Error,
			})
		}
	}
	if err := o.store.SaveStep(rec, files); err != nil {
		o.logger.Warn("No se pudo registrar el paso", "step", res.Name, "error", err)
	}
}
