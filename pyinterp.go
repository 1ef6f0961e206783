package tablebridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TableFormat selects the Python type tables are rebuilt as.
type TableFormat string

const (
	TableFormatPolars TableFormat = "polars"
	TableFormatPandas TableFormat = "pandas"
	TableFormatDict   TableFormat = "dict"
)

// Valid reports whether f is a known format.
func (f TableFormat) Valid() bool {
	switch f {
	case TableFormatPolars, TableFormatPandas, TableFormatDict:
		return true
	}
	return false
}

// exitTimeout bounds the polite shutdown before the process is terminated.
const exitTimeout = time.Second

type wireRequest struct {
	RequestID string      `json:"request_id" msgpack:"request_id"`
	Command   string      `json:"command" msgpack:"command"`
	Data      interface{} `json:"data" msgpack:"data"`
}

type wireReply struct {
	RequestID string           `json:"request_id" msgpack:"request_id"`
	Event     string           `json:"event,omitempty" msgpack:"event,omitempty"`
	Level     string           `json:"level,omitempty" msgpack:"level,omitempty"`
	Message   string           `json:"message,omitempty" msgpack:"message,omitempty"`
	Paths     []string         `json:"paths,omitempty" msgpack:"paths,omitempty"`
	Length    int              `json:"length,omitempty" msgpack:"length,omitempty"`
	Object    *Object          `json:"object,omitempty" msgpack:"object,omitempty"`
	Phase     Phase            `json:"phase,omitempty" msgpack:"phase,omitempty"`
	Error     *PythonException `json:"error,omitempty" msgpack:"error,omitempty"`
}

// handshake is the first frame the host script sends, always JSON.
type handshake struct {
	Codec   string `json:"codec"`
	Version string `json:"version"`
	PID     int    `json:"pid"`
}

// ProcessInterpreter implements Interpreter by driving the embedded host
// script in a child interpreter. Requests carry unique ids and replies are
// routed back by a single message loop, which also forwards the host's log
// events to the package logger.
type ProcessInterpreter struct {
	*PythonProcess

	serializer Serializer
	transport  Transport
	version    string

	// mutex protects responseMap and exited
	mutex       sync.Mutex
	responseMap map[string]chan *wireReply
	exited      bool

	// writeMu keeps frames from interleaving on the pipe
	writeMu sync.Mutex

	nextID   atomic.Int64
	loopDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// SystemInterpreter returns a factory that discovers an environment from cfg
// and starts a ProcessInterpreter in it.
func SystemInterpreter(cfg *Config) InterpreterFactory {
	return func(ctx context.Context) (Interpreter, error) {
		env, err := DiscoverEnvironment(cfg)
		if err != nil {
			return nil, newError(PhaseInit, "discovering python", err)
		}
		return env.NewProcessInterpreter(ctx, ProcessOptions{TableFormat: cfg.TableFormat})
	}
}

// NewProcessInterpreter starts the host script and completes the handshake.
func (env *PythonEnvironment) NewProcessInterpreter(ctx context.Context, opts ProcessOptions) (*ProcessInterpreter, error) {
	proc, err := env.NewHostProcess(opts)
	if err != nil {
		return nil, newError(PhaseInit, "starting interpreter", err)
	}
	transport := NewFramedTransport(proc.PipeIn, proc.PipeOut)

	hs, err := readHandshake(ctx, transport, proc)
	if err != nil {
		proc.Close()
		return nil, newError(PhaseInit, "handshake", err)
	}

	serializer, ok := serializerFor(hs.Codec)
	if !ok {
		proc.Close()
		return nil, newError(PhaseInit, "handshake", fmt.Errorf("unknown codec %q", hs.Codec))
	}

	pi := &ProcessInterpreter{
		PythonProcess: proc,
		serializer:    serializer,
		transport:     transport,
		version:       hs.Version,
		responseMap:   make(map[string]chan *wireReply),
		loopDone:      make(chan struct{}),
	}

	Logger().Info("interpreter ready",
		zap.String("python", env.PythonPath),
		zap.String("version", hs.Version),
		zap.String("codec", hs.Codec),
		zap.Int("pid", hs.PID),
	)

	go pi.messageLoop()

	return pi, nil
}

func readHandshake(ctx context.Context, transport Transport, proc *PythonProcess) (handshake, error) {
	type received struct {
		data []byte
		err  error
	}
	ch := make(chan received, 1)
	go func() {
		data, err := transport.Receive()
		ch <- received{data, err}
	}()

	var hs handshake
	select {
	case r := <-ch:
		if r.err != nil {
			if r.err == io.EOF {
				return hs, fmt.Errorf("interpreter exited before handshake: %v", proc.Wait())
			}
			return hs, r.err
		}
		if err := json.Unmarshal(r.data, &hs); err != nil {
			return hs, fmt.Errorf("decoding handshake: %w", err)
		}
		return hs, nil
	case <-ctx.Done():
		// closing the pipes unblocks the receive
		proc.Close()
		return hs, ctx.Err()
	}
}

// Version is the interpreter version reported at handshake, e.g. "3.12.6".
func (pi *ProcessInterpreter) Version() string {
	return pi.version
}

// Codec is the name of the negotiated wire codec.
func (pi *ProcessInterpreter) Codec() string {
	return pi.serializer.Name()
}

func (pi *ProcessInterpreter) generateRequestID() string {
	return "req-" + strconv.FormatInt(pi.nextID.Add(1), 10)
}

// messageLoop reads frames until the pipe closes. Replies are handed to the
// waiting request; when the loop ends every pending request is failed.
func (pi *ProcessInterpreter) messageLoop() {
	defer close(pi.loopDone)

	for {
		data, err := pi.transport.Receive()
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				Logger().Warn("interpreter pipe failed", zap.Error(err))
			}
			break
		}

		var reply wireReply
		if err := pi.serializer.Unmarshal(data, &reply); err != nil {
			Logger().Warn("undecodable message from interpreter", zap.Error(err))
			continue
		}

		if reply.Event == "log" {
			pi.logEvent(&reply)
			continue
		}

		pi.mutex.Lock()
		ch, exists := pi.responseMap[reply.RequestID]
		if exists {
			delete(pi.responseMap, reply.RequestID)
		}
		pi.mutex.Unlock()

		if !exists {
			Logger().Warn("reply for unknown request", zap.String("request_id", reply.RequestID))
			continue
		}
		ch <- &reply
	}

	pi.mutex.Lock()
	pi.exited = true
	for id, ch := range pi.responseMap {
		close(ch)
		delete(pi.responseMap, id)
	}
	pi.mutex.Unlock()
}

func (pi *ProcessInterpreter) logEvent(reply *wireReply) {
	l := Logger().With(zap.String("source", "python"))
	switch reply.Level {
	case "debug":
		l.Debug(reply.Message)
	case "warning":
		l.Warn(reply.Message)
	case "error":
		l.Error(reply.Message)
	default:
		l.Info(reply.Message)
	}
}

func (pi *ProcessInterpreter) forget(requestID string) {
	pi.mutex.Lock()
	delete(pi.responseMap, requestID)
	pi.mutex.Unlock()
}

// request sends one command and waits for its reply. Python exceptions come
// back as *Error tagged with the phase the host reported.
func (pi *ProcessInterpreter) request(ctx context.Context, command, detail string, data interface{}) (*wireReply, error) {
	requestID := pi.generateRequestID()
	ch := make(chan *wireReply, 1)

	pi.mutex.Lock()
	if pi.exited {
		pi.mutex.Unlock()
		return nil, newError(PhaseTransport, detail, ErrInterpreterExited)
	}
	pi.responseMap[requestID] = ch
	pi.mutex.Unlock()

	payload, err := pi.serializer.Marshal(wireRequest{
		RequestID: requestID,
		Command:   command,
		Data:      data,
	})
	if err != nil {
		pi.forget(requestID)
		return nil, newError(PhaseMarshal, detail, err)
	}

	pi.writeMu.Lock()
	err = pi.transport.Send(payload)
	pi.writeMu.Unlock()
	if err != nil {
		pi.forget(requestID)
		return nil, newError(PhaseTransport, detail, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, newError(PhaseTransport, detail, ErrInterpreterExited)
		}
		if reply.Error != nil {
			phase := reply.Phase
			if phase == "" {
				phase = PhaseTransport
			}
			var cause error = reply.Error
			if phase == PhaseAttribute {
				cause = fmt.Errorf("%w: %w", ErrAttributeNotFound, reply.Error)
			}
			return nil, newError(phase, detail, cause)
		}
		return reply, nil
	case <-ctx.Done():
		pi.forget(requestID)
		return nil, newError(PhaseTransport, detail, ctx.Err())
	}
}

func (pi *ProcessInterpreter) objectReply(ctx context.Context, command, detail string, data interface{}) (Object, error) {
	reply, err := pi.request(ctx, command, detail, data)
	if err != nil {
		return Object{}, err
	}
	if reply.Object == nil {
		return Object{}, newError(PhaseTransport, detail, errors.New("reply carries no object"))
	}
	obj := *reply.Object
	obj.Value = normalizeNative(obj.Value)
	return obj, nil
}

// SysPath returns the interpreter's sys.path.
func (pi *ProcessInterpreter) SysPath(ctx context.Context) ([]string, error) {
	reply, err := pi.request(ctx, "sys_path", "reading sys.path", nil)
	if err != nil {
		return nil, err
	}
	return reply.Paths, nil
}

// InsertSysPath inserts path into sys.path at index. Duplicates are not removed.
func (pi *ProcessInterpreter) InsertSysPath(ctx context.Context, index int, path string) (int, error) {
	reply, err := pi.request(ctx, "sys_path_insert", "inserting into sys.path", map[string]interface{}{
		"index": index,
		"path":  path,
	})
	if err != nil {
		return 0, err
	}
	return reply.Length, nil
}

// LoadModule compiles src and registers it in sys.modules under src.Name.
func (pi *ProcessInterpreter) LoadModule(ctx context.Context, src ModuleSource) (Object, error) {
	return pi.objectReply(ctx, "load_module", src.File, map[string]interface{}{
		"name":   src.Name,
		"file":   src.File,
		"source": src.Source,
	})
}

// GetAttr resolves name on obj.
func (pi *ProcessInterpreter) GetAttr(ctx context.Context, obj Object, name string) (Object, error) {
	return pi.objectReply(ctx, "getattr", name, map[string]interface{}{
		"object": obj.ID,
		"name":   name,
	})
}

// Call invokes fn with args converted to their wire form.
func (pi *ProcessInterpreter) Call(ctx context.Context, fn Object, args ...interface{}) (Object, error) {
	wireArgs, err := marshalArgs(args)
	if err != nil {
		return Object{}, err
	}
	return pi.objectReply(ctx, "call", fn.Label(), map[string]interface{}{
		"object": fn.ID,
		"args":   wireArgs,
	})
}

// Release drops the host's references to objs.
func (pi *ProcessInterpreter) Release(ctx context.Context, objs ...Object) error {
	ids := make([]int64, len(objs))
	for i, o := range objs {
		ids[i] = o.ID
	}
	_, err := pi.request(ctx, "release", "releasing objects", map[string]interface{}{"objects": ids})
	return err
}

// Close asks the host to exit, then terminates the process and waits for the
// message loop to finish.
func (pi *ProcessInterpreter) Close() error {
	pi.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
		if _, err := pi.request(ctx, "exit", "exit", nil); err != nil {
			Logger().Debug("interpreter did not acknowledge exit", zap.Error(err))
		}
		cancel()

		select {
		case <-pi.Exited():
		case <-time.After(exitTimeout):
		}
		pi.closeErr = pi.PythonProcess.Close()
		<-pi.loopDone
	})
	return pi.closeErr
}

// marshalArgs converts call arguments to the host's wire form.
func marshalArgs(args []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *Table:
			w, err := v.wire()
			if err != nil {
				return nil, err
			}
			out[i] = w
		case Object:
			out[i] = v.wire()
		default:
			out[i] = v
		}
	}
	return out, nil
}
