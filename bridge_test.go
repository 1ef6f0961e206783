package tablebridge

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const okModule = "def line_graph(df, x, y):\n    return 'ok'\n"

func newTestBridge(t *testing.T, f *fakeInterpreter) *Bridge {
	t.Helper()
	SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { SetLogger(nil) })

	session := NewSession(f.factory())
	t.Cleanup(func() { session.Close() })
	return NewBridge(session, NewModuleFromString("", "", okModule))
}

func TestInvokeSuccess(t *testing.T) {
	f := newFakeInterpreter()
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if !res.OK() {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if res.Value.Value != "ok" {
		t.Errorf("Value = %v, want ok", res.Value.Value)
	}
	if got := res.String(); got != "Ok('ok')" {
		t.Errorf("String() = %q", got)
	}

	want := []string{"sys_path", "insert", "load", "getattr", "call", "release"}
	if got := f.Steps(); !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v", got, want)
	}

	if len(f.args) != 3 {
		t.Fatalf("call received %d args, want 3", len(f.args))
	}
	table, ok := f.args[0].(*Table)
	if !ok || table.Height() != 3 || table.Width() != 2 {
		t.Errorf("first argument = %#v, want the 3x2 table", f.args[0])
	}
	if f.args[1] != "Date" || f.args[2] != "Value" {
		t.Errorf("column arguments = %v, %v", f.args[1], f.args[2])
	}
	if f.path[0] != VenvPackagesDir() {
		t.Errorf("sys.path[0] = %q, want %q", f.path[0], VenvPackagesDir())
	}
	if len(f.objects) != 0 {
		t.Errorf("%d handles left unreleased", len(f.objects))
	}
}

func TestInvokeLoadFailureStopsBeforeAttribute(t *testing.T) {
	f := newFakeInterpreter()
	f.loadErr = newError(PhaseLoad, "hello.py", &PythonException{Exception: "SyntaxError", Message: "invalid syntax"})
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, &Error{Phase: PhaseLoad}) {
		t.Errorf("phase = %q, want load", PhaseOf(res.Err))
	}
	var pyErr *PythonException
	if !errors.As(res.Err, &pyErr) || pyErr.Exception != "SyntaxError" {
		t.Errorf("expected SyntaxError in chain, got %v", res.Err)
	}
	for _, step := range f.Steps() {
		if step == "getattr" || step == "call" {
			t.Errorf("step %q ran after a load failure", step)
		}
	}
	if !strings.HasPrefix(res.String(), "Err(") {
		t.Errorf("String() = %q", res.String())
	}
}

func TestInvokeLoadFailureWithoutPhase(t *testing.T) {
	f := newFakeInterpreter()
	f.loadErr = errors.New("boom")
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if PhaseOf(res.Err) != PhaseLoad {
		t.Errorf("phase = %q, want load", PhaseOf(res.Err))
	}
}

func TestInvokeMissingAttribute(t *testing.T) {
	f := newFakeInterpreter()
	f.missingAttr = true
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if !errors.Is(res.Err, ErrAttributeNotFound) {
		t.Fatalf("err = %v, want ErrAttributeNotFound", res.Err)
	}
	if PhaseOf(res.Err) != PhaseAttribute {
		t.Errorf("phase = %q, want attribute", PhaseOf(res.Err))
	}
	for _, step := range f.Steps() {
		if step == "call" {
			t.Error("call ran after a missing attribute")
		}
	}
	if len(f.objects) != 0 {
		t.Errorf("%d handles left unreleased", len(f.objects))
	}
}

func TestInvokeCallFailure(t *testing.T) {
	f := newFakeInterpreter()
	f.callErr = newError(PhaseCall, "line_graph", &PythonException{Exception: "ValueError", Message: "bad column"})
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if PhaseOf(res.Err) != PhaseCall {
		t.Errorf("phase = %q, want call", PhaseOf(res.Err))
	}
	if !strings.Contains(res.Err.Error(), "ValueError: bad column") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestInvokeNilTable(t *testing.T) {
	f := newFakeInterpreter()
	b := newTestBridge(t, f)

	res := b.Invoke(context.Background(), nil, "Date", "Value")
	if PhaseOf(res.Err) != PhaseMarshal {
		t.Errorf("phase = %q, want marshal", PhaseOf(res.Err))
	}
	for _, step := range f.Steps() {
		if step == "call" {
			t.Error("call ran with a nil table")
		}
	}
}

func TestInvokeGrowsSysPathEachTime(t *testing.T) {
	f := newFakeInterpreter()
	b := newTestBridge(t, f)
	initial := f.PathLen()

	const n = 4
	for i := 0; i < n; i++ {
		if res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value"); !res.OK() {
			t.Fatalf("invoke %d: %v", i, res.Err)
		}
	}
	if got := f.PathLen(); got != initial+n {
		t.Errorf("sys.path length = %d, want %d", got, initial+n)
	}
	for i := 0; i < n; i++ {
		if f.path[i] != VenvPackagesDir() {
			t.Errorf("sys.path[%d] = %q", i, f.path[i])
		}
	}
}

func TestInvokeConcurrentCallsDoNotInterleave(t *testing.T) {
	f := newFakeInterpreter()
	f.loadDelay = time.Millisecond
	b := newTestBridge(t, f)
	table := sampleTable(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := b.Invoke(context.Background(), table, "Date", "Value"); !res.OK() {
				errs <- res.Err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("invoke failed: %v", err)
	}
	if f.overlap.Load() {
		t.Error("invocations overlapped inside the session")
	}

	// each invocation must appear as one contiguous run of steps
	steps := f.Steps()
	want := []string{"sys_path", "insert", "load", "getattr", "call", "release"}
	if len(steps) != workers*len(want) {
		t.Fatalf("recorded %d steps, want %d", len(steps), workers*len(want))
	}
	for i, step := range steps {
		if step != want[i%len(want)] {
			t.Fatalf("step %d = %q, want %q", i, step, want[i%len(want)])
		}
	}
}

func TestInvokeInitFailure(t *testing.T) {
	SetLogger(zaptest.NewLogger(t))
	defer SetLogger(nil)

	session := NewSession(func(ctx context.Context) (Interpreter, error) {
		return nil, errors.New("no python")
	})
	b := NewBridge(session, NewModuleFromString("", "", okModule))

	res := b.Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if PhaseOf(res.Err) != PhaseInit {
		t.Errorf("phase = %q, want init", PhaseOf(res.Err))
	}
}

func TestResultString(t *testing.T) {
	ok := Result{Value: Object{Repr: "PosixPath('/tmp/chart.html')"}}
	if got := ok.String(); got != "Ok(PosixPath('/tmp/chart.html'))" {
		t.Errorf("String() = %q", got)
	}

	failed := Result{Err: newError(PhaseAttribute, "line_graph", ErrAttributeNotFound)}
	if got := failed.String(); got != "Err([attribute] line_graph: attribute not found)" {
		t.Errorf("String() = %q", got)
	}
}

func TestInvokeLogsPythonTraceback(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	f := newFakeInterpreter()
	f.callErr = newError(PhaseCall, "line_graph", &PythonException{
		Exception: "KeyError",
		Message:   "'Date'",
		Traceback: "Traceback (most recent call last):\n  File \"hello.py\", line 9, in line_graph\nKeyError: 'Date'",
	})
	session := NewSession(f.factory())
	defer session.Close()

	res := NewBridge(session, NewModuleFromString("", "", okModule)).Invoke(context.Background(), sampleTable(t), "Date", "Value")
	if res.OK() {
		t.Fatal("expected failure")
	}

	entries := logs.FilterMessage("python traceback").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d traceback entries, want 1", len(entries))
	}
	if tb := entries[0].ContextMap()["traceback"]; !strings.Contains(tb.(string), `in line_graph`) {
		t.Errorf("traceback field = %v", tb)
	}
}

func TestObjectLabel(t *testing.T) {
	fn := Object{Type: "function", Name: "line_graph", Repr: "<function line_graph at 0x7f3d2c1b0040>"}
	if fn.Label() != "line_graph" {
		t.Errorf("Label() = %q", fn.Label())
	}
	path := Object{Type: "PosixPath", Repr: "PosixPath('/tmp/chart.html')"}
	if path.Label() != "PosixPath" {
		t.Errorf("Label() = %q", path.Label())
	}
}
