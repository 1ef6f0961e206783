package tablebridge

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Interpreter is the set of operations the bridge performs on an embedded
// runtime. Implementations are not required to be safe for concurrent use;
// Session serializes every call.
type Interpreter interface {
	// SysPath returns the module search path in order.
	SysPath(ctx context.Context) ([]string, error)

	// InsertSysPath inserts path at index and returns the new length.
	InsertSysPath(ctx context.Context, index int, path string) (int, error)

	// LoadModule compiles and executes src as a new module.
	LoadModule(ctx context.Context, src ModuleSource) (Object, error)

	// GetAttr resolves name on obj. A missing attribute is an attribute-phase
	// error wrapping ErrAttributeNotFound.
	GetAttr(ctx context.Context, obj Object, name string) (Object, error)

	// Call invokes fn with positional args. Args may be *Table, Object or
	// plain Go values.
	Call(ctx context.Context, fn Object, args ...interface{}) (Object, error)

	// Release drops the interpreter's references to objs.
	Release(ctx context.Context, objs ...Object) error

	// Close shuts the runtime down.
	Close() error
}

// InterpreterFactory creates the Interpreter owned by a Session.
type InterpreterFactory func(ctx context.Context) (Interpreter, error)

// Session owns one Interpreter and the lock guarding it. The interpreter is
// created lazily on first use, exactly once; every operation on it happens
// inside Do, which holds the lock for the whole callback.
type Session struct {
	// ID identifies the session in logs.
	ID uuid.UUID

	factory InterpreterFactory

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	interp Interpreter
	closed bool
}

// NewSession returns a session that will create its interpreter with factory.
func NewSession(factory InterpreterFactory) *Session {
	return &Session{ID: uuid.New(), factory: factory}
}

// Initialize creates the interpreter if that has not happened yet. It is safe
// to call any number of times; the first call's outcome is final.
func (s *Session) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.factory == nil {
			s.initErr = newError(PhaseInit, "session has no interpreter factory", nil)
			return
		}
		interp, err := s.factory(ctx)
		if err != nil {
			s.initErr = withPhase(PhaseInit, "creating interpreter", err)
			Logger().Error("interpreter initialization failed", zap.Stringer("session", s.ID), zap.Error(err))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			interp.Close()
			return
		}
		s.interp = interp
		Logger().Debug("interpreter initialized", zap.Stringer("session", s.ID))
	})
	return s.initErr
}

// Do runs fn with exclusive access to the interpreter. The lock is released
// when fn returns, fails or panics; fn must not retain the Interpreter.
func (s *Session) Do(ctx context.Context, fn func(py Interpreter) error) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError(PhaseInit, "", ErrSessionClosed)
	}
	return fn(s.interp)
}

// Close shuts down the interpreter. Later Do calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.interp == nil {
		return nil
	}
	return s.interp.Close()
}

var (
	defaultMu      sync.Mutex
	defaultSession *Session
	defaultFactory InterpreterFactory = SystemInterpreter(DefaultConfig())
)

// ErrDefaultSessionStarted is returned by SetDefaultFactory once the default
// session exists.
var ErrDefaultSessionStarted = errors.New("default session already created")

// SetDefaultFactory replaces the factory used by DefaultSession. It must be
// called before the first DefaultSession call.
func SetDefaultFactory(factory InterpreterFactory) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSession != nil {
		return ErrDefaultSessionStarted
	}
	defaultFactory = factory
	return nil
}

// DefaultSession returns the process-wide session.
func DefaultSession() *Session {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSession == nil {
		defaultSession = NewSession(defaultFactory)
	}
	return defaultSession
}
