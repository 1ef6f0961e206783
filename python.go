package tablebridge

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// RunPythonReadStdout runs the interpreter with args and returns stdout.
// On failure the error carries the interpreter's stderr.
func (env *PythonEnvironment) RunPythonReadStdout(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(env.PythonPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w: %s", env.PythonPath, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunPythonReadCombined runs the interpreter with args and returns stdout and
// stderr interleaved. Python 2 printed --version to stderr, so probes that
// only need a line of text use this.
func (env *PythonEnvironment) RunPythonReadCombined(args ...string) (string, error) {
	output, err := exec.Command(env.PythonPath, args...).CombinedOutput()
	return string(output), err
}
