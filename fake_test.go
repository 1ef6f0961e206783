package tablebridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeInterpreter records the operations performed on it and reports
// overlapping invocations.
type fakeInterpreter struct {
	mu      sync.Mutex
	path    []string
	steps   []string
	objects map[int64]string
	nextID  int64
	closed  bool
	args    []interface{}

	loadErr     error
	missingAttr bool
	callErr     error
	result      Object
	loadDelay   time.Duration

	active  atomic.Int32
	overlap atomic.Bool
}

func newFakeInterpreter() *fakeInterpreter {
	return &fakeInterpreter{
		path:    []string{"/usr/lib/python312.zip", "/usr/lib/python3.12"},
		objects: make(map[int64]string),
		result:  Object{Type: "str", Repr: "'ok'", Value: "ok"},
	}
}

func (f *fakeInterpreter) factory() InterpreterFactory {
	return func(ctx context.Context) (Interpreter, error) { return f, nil }
}

func (f *fakeInterpreter) record(step string) {
	f.mu.Lock()
	f.steps = append(f.steps, step)
	f.mu.Unlock()
}

func (f *fakeInterpreter) Steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.steps...)
}

func (f *fakeInterpreter) register(kind string) Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.objects[f.nextID] = kind
	return Object{ID: f.nextID, Type: kind, Repr: "<" + kind + ">"}
}

func (f *fakeInterpreter) enter() {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
}

func (f *fakeInterpreter) leave() {
	f.active.Add(-1)
}

func (f *fakeInterpreter) SysPath(ctx context.Context) ([]string, error) {
	f.enter()
	f.record("sys_path")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.path...), nil
}

func (f *fakeInterpreter) InsertSysPath(ctx context.Context, index int, path string) (int, error) {
	f.record("insert")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = append(f.path[:index], append([]string{path}, f.path[index:]...)...)
	return len(f.path), nil
}

func (f *fakeInterpreter) LoadModule(ctx context.Context, src ModuleSource) (Object, error) {
	f.record("load")
	if f.loadDelay > 0 {
		time.Sleep(f.loadDelay)
	}
	if f.loadErr != nil {
		f.leave()
		return Object{}, f.loadErr
	}
	return f.register("module"), nil
}

func (f *fakeInterpreter) GetAttr(ctx context.Context, obj Object, name string) (Object, error) {
	f.record("getattr")
	if f.missingAttr {
		return Object{}, newError(PhaseAttribute, name,
			fmt.Errorf("%w: module 'hello' has no attribute '%s'", ErrAttributeNotFound, name))
	}
	return f.register("function"), nil
}

func (f *fakeInterpreter) Call(ctx context.Context, fn Object, args ...interface{}) (Object, error) {
	f.record("call")
	f.mu.Lock()
	f.args = args
	f.mu.Unlock()
	if f.callErr != nil {
		return Object{}, f.callErr
	}
	res := f.register(f.result.Type)
	res.Repr = f.result.Repr
	res.Value = f.result.Value
	return res, nil
}

func (f *fakeInterpreter) Release(ctx context.Context, objs ...Object) error {
	f.record("release")
	f.mu.Lock()
	for _, o := range objs {
		delete(f.objects, o.ID)
	}
	f.mu.Unlock()
	f.leave()
	return nil
}

func (f *fakeInterpreter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed twice")
	}
	f.closed = true
	return nil
}

func (f *fakeInterpreter) PathLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.path)
}
