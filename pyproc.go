package tablebridge

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"text/template"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

//go:embed scripts/host.py
var hostScriptTemplate string

// terminateGrace is how long Terminate waits after the polite signal.
const terminateGrace = 5 * time.Second

// PythonProcess is a running interpreter child with a pair of dedicated
// pipes for the host protocol. The child's stdout and stderr are copied to
// the writers given at start.
type PythonProcess struct {
	// Cmd is the underlying exec.Cmd for the Python process.
	Cmd *exec.Cmd

	// PipeIn is for reading data sent from the Python process.
	PipeIn *os.File

	// PipeOut is for writing data to the Python process.
	PipeOut *os.File

	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopSig  chan struct{}
}

// ProcessOptions configures a PythonProcess.
type ProcessOptions struct {
	// Env is appended to the host's environment.
	Env map[string]string

	// Dir is the working directory; empty means the host's.
	Dir string

	// Stdout and Stderr receive the interpreter's output. Nil means the
	// host's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// TableFormat selects how tables are rebuilt in Python.
	TableFormat TableFormat
}

// hostTemplateData holds data for rendering the host script.
type hostTemplateData struct {
	ReadHandle  string
	WriteHandle string
	TableFormat TableFormat
}

func procTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("host").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("parsing host template: %w", err)
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		return "", fmt.Errorf("executing host template: %w", err)
	}
	return result.String(), nil
}

// NewHostProcess starts the interpreter running the embedded host script.
//
// Two pipes are created: one the child reads commands from and one it writes
// replies to. The child's ends are closed in the parent once it has started,
// so the parent sees EOF on PipeIn as soon as the child exits.
func (env *PythonEnvironment) NewHostProcess(opts ProcessOptions) (*PythonProcess, error) {
	if opts.TableFormat == "" {
		opts.TableFormat = TableFormatPolars
	}

	childIn, parentOut, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	parentIn, childOut, err := os.Pipe()
	if err != nil {
		return nil, multierr.Combine(err, childIn.Close(), parentOut.Close())
	}
	closeAll := func() error {
		return multierr.Combine(childIn.Close(), parentOut.Close(), parentIn.Close(), childOut.Close())
	}

	cmd := exec.Command(env.PythonPath)
	handles := setExtraFiles(cmd, []*os.File{childIn, childOut})
	configureChild(cmd)

	script, err := procTemplate(hostScriptTemplate, hostTemplateData{
		ReadHandle:  handles[0],
		WriteHandle: handles[1],
		TableFormat: opts.TableFormat,
	})
	if err != nil {
		return nil, multierr.Append(err, closeAll())
	}

	// -u keeps the child's stdout unbuffered so prints interleave with ours
	cmd.Args = append(cmd.Args, "-u", "-c", script)
	cmd.Dir = opts.Dir

	cmd.Env = os.Environ()
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, multierr.Append(fmt.Errorf("starting %s: %w", env.PythonPath, err), closeAll())
	}

	// the child holds its own copies now
	childIn.Close()
	childOut.Close()

	pp := &PythonProcess{
		Cmd:     cmd,
		PipeIn:  parentIn,
		PipeOut: parentOut,
		done:    make(chan struct{}),
		stopSig: make(chan struct{}),
	}

	go func() {
		pp.waitErr = cmd.Wait()
		close(pp.done)
	}()

	setupSignalHandler(pp)

	Logger().Debug("interpreter started",
		zap.String("python", env.PythonPath),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("table_format", string(opts.TableFormat)),
	)

	return pp, nil
}

// Exited is closed once the process has exited and been reaped.
func (pp *PythonProcess) Exited() <-chan struct{} {
	return pp.done
}

// Wait blocks until the Python process exits.
// Returns an error if the process was killed or exited with a non-zero status.
func (pp *PythonProcess) Wait() error {
	<-pp.done
	err := pp.waitErr
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			return errors.New("child process was killed")
		}
		return err
	}
	return nil
}

// Terminate asks the process to stop and kills it if it has not exited
// within terminateGrace. Returns nil if the process had already exited.
func (pp *PythonProcess) Terminate() error {
	pp.stopOnce.Do(func() { close(pp.stopSig) })

	select {
	case <-pp.done:
		return nil
	default:
	}

	if err := terminateSignal(pp.Cmd.Process); err != nil {
		// the process may have exited between the check and the signal
		select {
		case <-pp.done:
			return nil
		default:
		}
		return err
	}

	select {
	case <-time.After(terminateGrace):
		if err := pp.Cmd.Process.Kill(); err != nil {
			return err
		}
		<-pp.done
	case <-pp.done:
	}
	return nil
}

// Close terminates the process and closes the parent's pipe ends.
func (pp *PythonProcess) Close() error {
	return multierr.Combine(pp.Terminate(), pp.PipeIn.Close(), pp.PipeOut.Close())
}

// setupSignalHandler terminates the child when the host is interrupted.
func setupSignalHandler(pp *PythonProcess) {
	signalChan := make(chan os.Signal, 1)
	setSignalsForChannel(signalChan)

	go func() {
		defer stopSignals(signalChan)
		select {
		case <-signalChan:
			Logger().Info("signal received, terminating interpreter", zap.Int("pid", pp.Cmd.Process.Pid))
			pp.Terminate()
		case <-pp.done:
		case <-pp.stopSig:
		}
	}()
}
