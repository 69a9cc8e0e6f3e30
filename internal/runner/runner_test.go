// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf-magic/internal/ops"
	"github.com/pdiddy/pdf-magic/internal/store/sqlite"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// fakeOp writes {base}.out for each input. Behaviour per input is steered by
// its base name.
type fakeOp struct {
	kind    types.Operation
	fail    map[string]bool
	panicOn string
	started chan string   // receives each item's base name when set
	gate    chan struct{} // each Apply waits for one token when set
	block   bool          // wait for ctx.Done instead of working

	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeOp) Kind() types.Operation { return f.kind }

func (f *fakeOp) Accepts(path string) bool { return strings.HasSuffix(path, ".pdf") }

func (f *fakeOp) Plan(inputs []string) [][]string {
	items := make([][]string, len(inputs))
	for i, in := range inputs {
		items[i] = []string{in}
	}
	return items
}

func (f *fakeOp) Apply(ctx context.Context, inputs []string, outDir string) (types.Output, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	base := strings.TrimSuffix(filepath.Base(inputs[0]), ".pdf")
	if f.started != nil {
		f.started <- base
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.block {
		<-ctx.Done()
		return types.Output{}, ctx.Err()
	}
	if base == f.panicOn {
		panic("boom")
	}
	if f.fail[base] {
		return types.Output{}, fmt.Errorf("corrupt pdf %s", base)
	}
	p, err := ops.ReservePath(outDir, base+".out", false)
	if err != nil {
		return types.Output{}, err
	}
	return types.Output{Inputs: inputs, Paths: []string{p}}, nil
}

func newTestRunner(t *testing.T, op ops.Operation, cfg Config) (*Runner, <-chan types.Event) {
	t.Helper()
	r := New(context.Background(), ops.NewLibrary(op), cfg)
	ch := r.Events()
	t.Cleanup(func() {
		go func() {
			for range ch {
			}
		}()
		r.Close()
	})
	return r, ch
}

func makeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte("%PDF-1.4"), 0o644))
	}
	return paths
}

// collect reads events until every listed task has had a terminal event.
func collect(t *testing.T, ch <-chan types.Event, ids ...string) map[string][]types.Event {
	t.Helper()
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	got := make(map[string][]types.Event)
	timeout := time.After(10 * time.Second)
	for len(pending) > 0 {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "events channel closed early")
			got[ev.TaskID] = append(got[ev.TaskID], ev)
			if ev.Kind.Terminal() {
				delete(pending, ev.TaskID)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for tasks %v", pending)
		}
	}
	return got
}

func percents(events []types.Event) []int {
	var out []int
	for _, ev := range events {
		if ev.Kind == types.EventProgress {
			out = append(out, ev.Percent)
		}
	}
	return out
}

func terminals(events []types.Event) []types.EventKind {
	var out []types.EventKind
	for _, ev := range events {
		if ev.Kind.Terminal() {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func TestSubmit_Validation(t *testing.T) {
	dir := t.TempDir()
	good := makeInputs(t, dir, "a.pdf", "b.pdf")
	wrongExt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(wrongExt, []byte("x"), 0o644))
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	lib := ops.Default(ops.Config{})
	lib.Register(&fakeOp{kind: types.OpExtractText})
	r := New(context.Background(), lib, Config{})
	t.Cleanup(r.Close)

	tests := []struct {
		name    string
		inputs  []string
		op      types.Operation
		outDir  string
		wantErr error
	}{
		{"no inputs", nil, types.OpExtractText, dir, ErrNoInputs},
		{"unknown operation", good, types.Operation("ocr"), dir, ErrUnknownOperation},
		{"missing file", []string{filepath.Join(dir, "gone.pdf")}, types.OpExtractText, dir, ErrInvalidInput},
		{"directory input", []string{dir}, types.OpExtractText, dir, ErrInvalidInput},
		{"wrong extension", []string{wrongExt}, types.OpExtractText, dir, ErrInvalidInput},
		{"merge of one file", good[:1], types.OpMergePdf, dir, ErrInvalidInput},
		{"output dir under a file", good, types.OpExtractText, filepath.Join(blocker, "out"), ErrOutputDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Submit(tt.inputs, tt.op, tt.outDir)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, id)
		})
	}

	tasks, err := r.Tasks()
	require.NoError(t, err)
	assert.Empty(t, tasks, "rejected submissions must not be registered")
}

func TestRun_CorruptMiddleFileCompletes(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, "one.pdf", "two.pdf", "three.pdf")
	out := filepath.Join(dir, "out")
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, fail: map[string]bool{"two": true}}, Config{})

	id, err := r.Submit(inputs, types.OpExtractText, out)
	require.NoError(t, err)
	events := collect(t, ch, id)[id]

	assert.Equal(t, []types.EventKind{types.EventCompleted}, terminals(events))
	assert.Equal(t, types.EventCompleted, events[len(events)-1].Kind)
	assert.Equal(t, []int{33, 66, 99, 100}, percents(events))

	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, 1, task.ErrorCount())
	require.NotNil(t, task.Result)
	assert.Len(t, task.Result.Outputs, 2)
	assert.FileExists(t, filepath.Join(out, "one.out"))
	assert.NoFileExists(t, filepath.Join(out, "two.out"))
	assert.FileExists(t, filepath.Join(out, "three.out"))

	// log order follows input order
	var inputsLogged []string
	for _, e := range task.Log {
		inputsLogged = append(inputsLogged, e.Input)
	}
	assert.Equal(t, []string{"one.pdf", "two.pdf", "three.pdf"}, inputsLogged)
}

func TestRun_FailuresLoggedBelowError(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	inputs := makeInputs(t, dir, "x.pdf", "y.pdf")
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, fail: map[string]bool{"x": true, "y": true}},
		Config{Logger: zerolog.New(&buf)})

	id, err := r.Submit(inputs, types.OpExtractText, dir)
	require.NoError(t, err)
	collect(t, ch, id)
	r.Wait()

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "corrupt pdf x")
	assert.NotContains(t, out, `"level":"error"`)
}

func TestRun_AllFailed(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, "x.pdf", "y.pdf")
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, fail: map[string]bool{"x": true, "y": true}}, Config{})

	id, err := r.Submit(inputs, types.OpExtractText, dir)
	require.NoError(t, err)
	events := collect(t, ch, id)[id]

	assert.Equal(t, []types.EventKind{types.EventFailed}, terminals(events))
	last := events[len(events)-1]
	assert.Equal(t, types.EventFailed, last.Kind)
	assert.Contains(t, last.Error, "all 2 item(s) failed")
	assert.Contains(t, last.Error, "corrupt pdf x")
	assert.Contains(t, last.Error, "corrupt pdf y")
	for _, p := range percents(events) {
		assert.Less(t, p, 100)
	}

	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, task.Status)
	assert.Less(t, task.Progress, 100)
	assert.Equal(t, 2, task.ErrorCount())
	assert.Equal(t, last.Error, task.Result.Error)
}

func TestCancel_AfterItems(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	out := filepath.Join(dir, "out")
	op := &fakeOp{kind: types.OpExtractText, started: make(chan string), gate: make(chan struct{})}
	r, ch := newTestRunner(t, op, Config{})

	id, err := r.Submit(inputs, types.OpExtractText, out)
	require.NoError(t, err)

	assert.Equal(t, "a", <-op.started)
	op.gate <- struct{}{}
	assert.Equal(t, "b", <-op.started)
	require.NoError(t, r.Cancel(id))
	op.gate <- struct{}{}

	// drain everything so nothing can trail the terminal event
	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	var events []types.Event
	for ev := range ch {
		if ev.TaskID == id {
			events = append(events, ev)
		}
	}
	<-closed

	require.NotEmpty(t, events)
	assert.Equal(t, types.EventCancelled, events[len(events)-1].Kind)
	assert.Equal(t, []types.EventKind{types.EventCancelled}, terminals(events))
	assert.Equal(t, []int{25, 50}, percents(events))

	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, task.Status)
	assert.Equal(t, 50, task.Progress)
	assert.Nil(t, task.Result)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCancel_PendingTask(t *testing.T) {
	dir := t.TempDir()
	op := &fakeOp{kind: types.OpExtractText, started: make(chan string, 4), gate: make(chan struct{})}
	r, ch := newTestRunner(t, op, Config{MaxConcurrent: 1})

	first, err := r.Submit(makeInputs(t, dir, "first.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	assert.Equal(t, "first", <-op.started)

	second, err := r.Submit(makeInputs(t, dir, "second.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	task, err := r.Task(second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, task.Status)

	require.NoError(t, r.Cancel(second))
	events := collect(t, ch, second)[second]
	assert.Empty(t, percents(events))
	assert.Equal(t, types.EventCancelled, events[len(events)-1].Kind)

	op.gate <- struct{}{}
	collect(t, ch, first)

	task, err = r.Task(second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, task.Status)
	assert.Equal(t, 0, task.Progress)
	assert.Len(t, op.started, 0, "cancelled task must not start an item")
}

func TestCancel_TerminalAndUnknown(t *testing.T) {
	dir := t.TempDir()
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText}, Config{})

	assert.ErrorIs(t, r.Cancel("missing"), ErrNotFound)

	id, err := r.Submit(makeInputs(t, dir, "a.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	collect(t, ch, id)

	require.NoError(t, r.Cancel(id))
	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	op := &fakeOp{kind: types.OpExtractText, started: make(chan string, 1), gate: make(chan struct{})}
	r, ch := newTestRunner(t, op, Config{})

	id, err := r.Submit(makeInputs(t, dir, "a.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	<-op.started
	assert.ErrorIs(t, r.Clear(id), ErrTaskActive)

	op.gate <- struct{}{}
	collect(t, ch, id)

	require.NoError(t, r.Clear(id))
	_, err = r.Task(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Clear(id), ErrNotFound)
}

func TestRun_PanicIsItemFailure(t *testing.T) {
	dir := t.TempDir()
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, panicOn: "bad"}, Config{})

	id, err := r.Submit(makeInputs(t, dir, "bad.pdf", "good.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	collect(t, ch, id)

	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
	require.Equal(t, 1, task.ErrorCount())
	assert.Contains(t, task.Log[0].Message, "operation panicked")
}

func TestRun_ItemTimeout(t *testing.T) {
	dir := t.TempDir()
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, block: true}, Config{ItemTimeout: 20 * time.Millisecond})

	id, err := r.Submit(makeInputs(t, dir, "slow.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	events := collect(t, ch, id)[id]

	last := events[len(events)-1]
	assert.Equal(t, types.EventFailed, last.Kind)
	assert.Contains(t, last.Error, "timed out")
}

func TestRun_SameInputTwiceGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, "report.pdf")
	out := filepath.Join(dir, "out")
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText}, Config{MaxConcurrent: 1})

	first, err := r.Submit(inputs, types.OpExtractText, out)
	require.NoError(t, err)
	collect(t, ch, first)
	second, err := r.Submit(inputs, types.OpExtractText, out)
	require.NoError(t, err)
	collect(t, ch, second)

	t1, err := r.Task(first)
	require.NoError(t, err)
	t2, err := r.Task(second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "report.out"), t1.Result.Outputs[0].Paths[0])
	assert.Equal(t, filepath.Join(out, "report(1).out"), t2.Result.Outputs[0].Paths[0])
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	dir := t.TempDir()
	op := &fakeOp{kind: types.OpExtractText, started: make(chan string, 8), gate: make(chan struct{})}
	r, ch := newTestRunner(t, op, Config{MaxConcurrent: 2})

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := r.Submit(makeInputs(t, dir, fmt.Sprintf("f%d.pdf", i)), types.OpExtractText, dir)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < 4; i++ {
		<-op.started
		op.gate <- struct{}{}
	}
	collect(t, ch, ids...)

	assert.LessOrEqual(t, op.peak.Load(), int32(2))
	tasks, err := r.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	for i, task := range tasks {
		assert.Equal(t, ids[i], task.ID)
		assert.Equal(t, types.StatusCompleted, task.Status)
	}
}

func TestRun_EventOrderPerTask(t *testing.T) {
	dir := t.TempDir()
	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, fail: map[string]bool{"c": true}}, Config{MaxConcurrent: 3})

	var ids []string
	for i := 0; i < 3; i++ {
		sub := filepath.Join(dir, fmt.Sprint(i))
		require.NoError(t, os.MkdirAll(sub, 0o755))
		id, err := r.Submit(makeInputs(t, sub, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"), types.OpExtractText, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	all := collect(t, ch, ids...)

	for _, id := range ids {
		events := all[id]
		p := percents(events)
		for i := 1; i < len(p); i++ {
			assert.GreaterOrEqual(t, p[i], p[i-1])
		}
		assert.Equal(t, 100, p[len(p)-1])
		assert.True(t, events[len(events)-1].Kind.Terminal())
		assert.Len(t, terminals(events), 1)

		task, err := r.Task(id)
		require.NoError(t, err)
		assert.Equal(t, "Converted_TEXT", filepath.Base(task.OutputDir))
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	r := New(context.Background(), ops.NewLibrary(&fakeOp{kind: types.OpExtractText}), Config{})
	ch := r.Events()

	id, err := r.Submit(makeInputs(t, dir, "a.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)

	go r.Close()
	var kinds []types.EventKind
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, types.EventCompleted, kinds[len(kinds)-1])

	_, err = r.Submit(makeInputs(t, dir, "b.pdf"), types.OpExtractText, dir)
	assert.ErrorIs(t, err, ErrClosed)

	task, err := r.Task(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
}

func TestRunner_SQLiteRegistry(t *testing.T) {
	dir := t.TempDir()
	st, err := sqlite.Open(sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r, ch := newTestRunner(t, &fakeOp{kind: types.OpExtractText, fail: map[string]bool{"b": true}}, Config{Store: st})
	id, err := r.Submit(makeInputs(t, dir, "a.pdf", "b.pdf"), types.OpExtractText, dir)
	require.NoError(t, err)
	collect(t, ch, id)

	task, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, task.Status)
	require.Len(t, task.Log, 2)
	assert.Equal(t, types.LevelInfo, task.Log[0].Level)
	assert.Equal(t, types.LevelError, task.Log[1].Level)
}

func TestDefaultOutputDir(t *testing.T) {
	got := DefaultOutputDir([]string{"/data/in/a.pdf", "/other/b.pdf"}, types.OpConvertToDocx)
	assert.Equal(t, filepath.Join("/data/in", "Converted_DOCX"), got)
	assert.Empty(t, DefaultOutputDir(nil, types.OpSplitPdf))
}

func TestApply_WrapsErrors(t *testing.T) {
	r := New(context.Background(), ops.NewLibrary(), Config{})
	t.Cleanup(r.Close)
	_, err := r.apply(&fakeOp{kind: types.OpExtractText, panicOn: "p"}, []string{"/x/p.pdf"}, t.TempDir())
	assert.True(t, errors.Is(err, ErrPanic))
}
