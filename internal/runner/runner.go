// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner executes conversion tasks off the caller's goroutine. Each
// task walks its items in order, logging per-item outcomes and reporting
// progress; a failed item never aborts the batch. Notifications are pushed
// on a single channel and cancellation is checked between items.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/pdf-magic/internal/ops"
	"github.com/pdiddy/pdf-magic/internal/store"
	"github.com/pdiddy/pdf-magic/internal/store/memory"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

const (
	defaultConcurrency = 2
	maxConcurrency     = 16
)

// Catalog resolves an operation kind to its implementation.
type Catalog interface {
	Lookup(kind types.Operation) (ops.Operation, bool)
}

// Config configures a Runner. The zero value is usable.
type Config struct {
	// MaxConcurrent bounds how many tasks run at once (default 2, max 16).
	MaxConcurrent int

	// ItemTimeout bounds a single transform; zero means no limit.
	ItemTimeout time.Duration

	// Store is the task registry. Defaults to an in-memory store.
	Store store.Store

	Logger zerolog.Logger
}

// Runner owns every submitted task until it reaches a terminal state.
type Runner struct {
	catalog     Catalog
	store       store.Store
	log         zerolog.Logger
	itemTimeout time.Duration

	ctx context.Context
	sem chan struct{}
	ev  *dispatcher
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[string]*handle
	closed bool
}

// handle is the runner's private view of an active task.
type handle struct {
	id        string
	op        ops.Operation
	cancelled chan struct{}
	once      sync.Once
}

func (h *handle) cancel() { h.once.Do(func() { close(h.cancelled) }) }

func (h *handle) isCancelled() bool {
	select {
	case <-h.cancelled:
		return true
	default:
		return false
	}
}

// New returns a Runner. ctx is handed to every transform and should only be
// cancelled when the application is shutting down.
func New(ctx context.Context, catalog Catalog, cfg Config) *Runner {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = defaultConcurrency
	}
	if n > maxConcurrency {
		n = maxConcurrency
	}
	st := cfg.Store
	if st == nil {
		st = memory.New()
	}
	return &Runner{
		catalog:     catalog,
		store:       st,
		log:         cfg.Logger.With().Str("component", "runner").Logger(),
		itemTimeout: cfg.ItemTimeout,
		ctx:         ctx,
		sem:         make(chan struct{}, n),
		ev:          newDispatcher(),
		active:      make(map[string]*handle),
	}
}

// Events returns the notification channel. Events are queued only once it
// has been called; the channel is closed by Close.
func (r *Runner) Events() <-chan types.Event {
	return r.ev.events()
}

// DefaultOutputDir is where a task writes when no directory is given:
// Converted_<OP> next to the first input.
func DefaultOutputDir(inputs []string, op types.Operation) string {
	if len(inputs) == 0 {
		return ""
	}
	return filepath.Join(filepath.Dir(inputs[0]), "Converted_"+strings.ToUpper(string(op)))
}

// Submit validates the request, registers a pending task, and schedules it.
// It returns the task ID without waiting for any work to start.
func (r *Runner) Submit(inputs []string, kind types.Operation, outputDir string) (string, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if len(inputs) == 0 {
		return "", ErrNoInputs
	}
	op, ok := r.catalog.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, kind)
	}
	paths, err := checkInputs(op, inputs)
	if err != nil {
		return "", err
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir(paths, kind)
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputDir, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputDir, err)
	}

	task := types.Task{
		ID:         uuid.NewString(),
		Operation:  kind,
		InputPaths: paths,
		OutputDir:  outputDir,
		Status:     types.StatusPending,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	if err := r.store.Save(r.storeCtx(), task); err != nil {
		return "", fmt.Errorf("registering task: %w", err)
	}
	h := &handle{id: task.ID, op: op, cancelled: make(chan struct{})}
	r.active[task.ID] = h
	r.wg.Add(1)
	go r.run(h, task)

	r.log.Info().Str("task", task.ID).Str("operation", string(kind)).
		Int("inputs", len(paths)).Str("output_dir", outputDir).Msg("task submitted")
	return task.ID, nil
}

func checkInputs(op ops.Operation, inputs []string) ([]string, error) {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, in, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, in)
		}
		if !op.Accepts(abs) {
			return nil, fmt.Errorf("%w: %s is not supported by %s", ErrInvalidInput, in, op.Kind())
		}
		paths[i] = abs
	}
	if v, ok := op.(ops.Validator); ok {
		if err := v.Validate(paths); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return paths, nil
}

// Cancel asks a task to stop before its next item. It is a no-op for
// terminal tasks.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	h, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		h.cancel()
		r.log.Info().Str("task", id).Msg("cancellation requested")
		return nil
	}
	if _, err := r.store.Get(r.storeCtx(), id); err != nil {
		return err
	}
	return nil
}

// Task returns a snapshot of one task.
func (r *Runner) Task(id string) (types.Task, error) {
	return r.store.Get(r.storeCtx(), id)
}

// Tasks returns snapshots of every registered task in creation order.
func (r *Runner) Tasks() ([]types.Task, error) {
	return r.store.List(r.storeCtx())
}

// Clear removes a terminal task from the registry.
func (r *Runner) Clear(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("%w: %s", ErrTaskActive, id)
	}
	return r.store.Delete(r.storeCtx(), id)
}

// Store returns the registry backing the runner.
func (r *Runner) Store() store.Store { return r.store }

// Wait blocks until every submitted task is terminal.
func (r *Runner) Wait() { r.wg.Wait() }

// Close rejects further submissions, waits for running tasks, then delivers
// any queued events and closes the Events channel.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	r.ev.close()
}

// storeCtx keeps registry writes alive while the runner context is being
// torn down.
func (r *Runner) storeCtx() context.Context {
	return context.WithoutCancel(r.ctx)
}

func (r *Runner) run(h *handle, task types.Task) {
	defer r.wg.Done()

	select {
	case r.sem <- struct{}{}:
	case <-h.cancelled:
		r.finishCancelled(h, &task, 0, 0)
		return
	}
	defer func() { <-r.sem }()

	items := h.op.Plan(task.InputPaths)
	task.Status = types.StatusRunning
	task.StartedAt = time.Now()
	r.save(&task)

	var (
		outputs   []types.Output
		failures  []string
		succeeded int
	)
	for i, item := range items {
		if h.isCancelled() {
			r.finishCancelled(h, &task, i, len(items))
			return
		}

		label := itemLabel(item)
		out, err := r.apply(h.op, item, task.OutputDir)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", label, err))
			r.appendLog(&task, types.LevelError, label, fmt.Sprintf("failed: %v", err))
		} else {
			succeeded++
			outputs = append(outputs, out)
			r.appendLog(&task, types.LevelInfo, label, "wrote "+strings.Join(out.Paths, ", "))
		}

		// 100 is reserved for Completed
		pct := (i + 1) * 100 / len(items)
		if pct > 99 {
			pct = 99
		}
		if pct > task.Progress {
			task.Progress = pct
			r.save(&task)
			r.emit(types.Event{TaskID: task.ID, Kind: types.EventProgress, Percent: pct})
		}
	}

	task.FinishedAt = time.Now()
	if succeeded > 0 {
		task.Status = types.StatusCompleted
		task.Progress = 100
		task.Result = &types.Result{Outputs: outputs}
		r.save(&task)
		r.emit(types.Event{TaskID: task.ID, Kind: types.EventProgress, Percent: 100})
		r.terminate(h, types.Event{TaskID: task.ID, Kind: types.EventCompleted})
		r.log.Info().Str("task", task.ID).Int("succeeded", succeeded).Int("failed", len(failures)).Msg("task completed")
		return
	}

	msg := fmt.Sprintf("all %d item(s) failed: %s", len(items), strings.Join(failures, "; "))
	task.Status = types.StatusFailed
	task.Result = &types.Result{Error: msg}
	r.save(&task)
	r.terminate(h, types.Event{TaskID: task.ID, Kind: types.EventFailed, Error: msg})
	r.log.Warn().Str("task", task.ID).Msg(msg)
}

// apply runs one item, converting a panic into an error.
func (r *Runner) apply(op ops.Operation, item []string, outDir string) (out types.Output, err error) {
	ctx := r.ctx
	if r.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.itemTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	out, err = op.Apply(ctx, item, outDir)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", r.itemTimeout, err)
	}
	return out, err
}

func (r *Runner) finishCancelled(h *handle, task *types.Task, done, total int) {
	msg := "cancelled before start"
	if total > 0 {
		msg = fmt.Sprintf("cancelled after %d of %d item(s)", done, total)
	}
	r.appendLog(task, types.LevelInfo, "", msg)
	task.Status = types.StatusCancelled
	task.FinishedAt = time.Now()
	r.save(task)
	r.terminate(h, types.Event{TaskID: task.ID, Kind: types.EventCancelled})
}

// terminate retires the task before its terminal event goes out, so a
// consumer reacting to the event can already Clear it.
func (r *Runner) terminate(h *handle, ev types.Event) {
	r.mu.Lock()
	delete(r.active, h.id)
	r.mu.Unlock()
	r.emit(ev)
}

func (r *Runner) appendLog(task *types.Task, level types.LogLevel, input, msg string) {
	e := types.LogEntry{Time: time.Now(), Level: level, Input: input, Message: msg}
	task.Log = append(task.Log, e)
	if err := r.store.AppendLog(r.storeCtx(), task.ID, e); err != nil {
		r.log.Error().Err(err).Str("task", task.ID).Msg("appending task log")
	}

	// task outcomes reach the user through events; zerolog's Error level is
	// kept for faults in the runner itself
	ev := r.log.Info()
	if level == types.LevelError {
		ev = r.log.Warn()
	}
	ev.Str("task", task.ID).Str("input", input).Msg(msg)

	r.emit(types.Event{TaskID: task.ID, Kind: types.EventLog, Entry: e})
}

func (r *Runner) save(task *types.Task) {
	if err := r.store.Save(r.storeCtx(), *task); err != nil {
		r.log.Error().Err(err).Str("task", task.ID).Msg("saving task")
	}
}

func (r *Runner) emit(ev types.Event) {
	ev.Time = time.Now()
	r.ev.push(ev)
}

func itemLabel(item []string) string {
	names := make([]string, len(item))
	for i, p := range item {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}
