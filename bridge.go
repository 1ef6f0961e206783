package tablebridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Bridge hands a table to a function defined in an embedded module.
type Bridge struct {
	// Session is the interpreter session; nil means DefaultSession().
	Session *Session

	// PackagePath is inserted at the front of sys.path on every Invoke.
	PackagePath string

	// Module is loaded on every Invoke.
	Module ModuleSource

	// Function is the attribute of Module that is called.
	Function string
}

// NewBridge returns a bridge that loads module in session and calls
// DefaultFunction, with VenvPackagesDir on the search path.
func NewBridge(session *Session, module ModuleSource) *Bridge {
	return &Bridge{
		Session:     session,
		PackagePath: VenvPackagesDir(),
		Module:      module,
		Function:    DefaultFunction,
	}
}

// Result is the outcome of one Invoke: the returned object or an error.
type Result struct {
	Value Object
	Err   error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// String renders the result as Ok(<repr>) or Err(<error>).
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("Err(%v)", r.Err)
	}
	return fmt.Sprintf("Ok(%s)", r.Value.Repr)
}

// Invoke calls Function(table, xColumn, yColumn) inside the session.
//
// While holding the session lock it inserts PackagePath at sys.path[0],
// loads Module, resolves Function and calls it. The insert is not
// deduplicated, so every Invoke grows sys.path by one entry. Any failure
// stops the sequence and is returned as the Result's error, tagged with the
// phase it occurred in.
func (b *Bridge) Invoke(ctx context.Context, table *Table, xColumn, yColumn string) Result {
	session := b.Session
	if session == nil {
		session = DefaultSession()
	}

	log := Logger().With(
		zap.Stringer("session", session.ID),
		zap.String("module", b.Module.Name),
		zap.String("function", b.Function),
	)

	var value Object
	err := session.Do(ctx, func(py Interpreter) error {
		before, err := py.SysPath(ctx)
		if err != nil {
			return withPhase(PhaseInit, "reading sys.path", err)
		}
		after, err := py.InsertSysPath(ctx, 0, b.PackagePath)
		if err != nil {
			return withPhase(PhaseInit, "inserting package path", err)
		}
		log.Debug("package path inserted",
			zap.String("path", b.PackagePath),
			zap.Int("sys_path_before", len(before)),
			zap.Int("sys_path_after", after),
		)

		log.Debug("loading module",
			zap.String("file", b.Module.File),
			zap.String("fingerprint", b.Module.Fingerprint()),
		)
		module, err := py.LoadModule(ctx, b.Module)
		if err != nil {
			return withPhase(PhaseLoad, b.Module.File, err)
		}

		fn, err := py.GetAttr(ctx, module, b.Function)
		if err != nil {
			release(ctx, py, log, module)
			return withPhase(PhaseAttribute, b.Function, err)
		}

		if table == nil {
			release(ctx, py, log, module, fn)
			return newError(PhaseMarshal, "nil table", nil)
		}

		result, err := py.Call(ctx, fn, table, xColumn, yColumn)
		if err != nil {
			release(ctx, py, log, module, fn)
			return withPhase(PhaseCall, b.Function, err)
		}

		release(ctx, py, log, module, fn, result)
		value = result
		return nil
	})
	if err != nil {
		log.Warn("invocation failed", zap.String("phase", string(PhaseOf(err))), zap.Error(err))
		var pyErr *PythonException
		if errors.As(err, &pyErr) {
			log.Debug("python traceback", zap.String("traceback", pyErr.ToString()))
		}
		return Result{Err: err}
	}

	log.Debug("invocation succeeded", zap.String("type", value.Type))
	return Result{Value: value}
}

// release frees interpreter handles the host no longer needs. Failures are
// logged; they never change the invocation's result.
func release(ctx context.Context, py Interpreter, log *zap.Logger, objs ...Object) {
	if err := py.Release(ctx, objs...); err != nil {
		log.Debug("releasing handles failed", zap.Error(err))
	}
}
