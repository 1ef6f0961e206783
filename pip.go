package tablebridge

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ProgressCallback is called during long-running operations to report progress.
// total is -1 when unknown.
type ProgressCallback func(message string, current, total int64)

// PipVersion reports the version of pip available to the interpreter.
func (env *PythonEnvironment) PipVersion() (Version, error) {
	out, err := env.RunPythonReadStdout("-m", "pip", "--version")
	if err != nil {
		return Version{}, err
	}
	return ParsePipVersion(strings.TrimSpace(out))
}

// pipInstallArgs builds the `python -m pip install` argument list.
func pipInstallArgs(packages []string, target string, noCache bool) []string {
	args := []string{"-m", "pip", "install", "--no-warn-script-location", "--disable-pip-version-check"}
	if noCache {
		args = append(args, "--no-cache-dir")
	}
	if target != "" {
		args = append(args, "--target", target)
	}
	return append(args, packages...)
}

// PipInstallPackages installs packages with the environment's pip. When
// target is set, packages are installed into that directory instead of the
// environment, which is how the venv package directory is populated from a
// base interpreter.
//
// The progress callback, if any, is called once per line pip prints.
func (env *PythonEnvironment) PipInstallPackages(packages []string, target string, noCache bool, progressCallback ProgressCallback) error {
	if len(packages) == 0 {
		return nil
	}

	installCmd := exec.Command(env.PythonPath, pipInstallArgs(packages, target, noCache)...)

	var stderrBuf bytes.Buffer
	installCmd.Stderr = &stderrBuf
	stdout, err := installCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	Logger().Info("installing packages", zap.Strings("packages", packages), zap.String("target", target))

	if err := installCmd.Start(); err != nil {
		return fmt.Errorf("error starting pip install: %w", err)
	}

	bardesc := "Installing pip packages..."
	if len(packages) == 1 {
		bardesc = fmt.Sprintf("Installing pip package %s...", packages[0])
	}
	lineCount := countLines(stdout, func(n int64, line string) {
		Logger().Debug("pip", zap.String("line", line))
		if progressCallback != nil {
			progressCallback(bardesc, n, -1)
		}
	})

	if err := installCmd.Wait(); err != nil {
		return fmt.Errorf("error installing packages: %w, stderr: %s", err, stderrBuf.String())
	}

	if progressCallback != nil {
		progressCallback("Pip packages installed successfully", lineCount, lineCount)
	}
	return nil
}

func countLines(r io.Reader, each func(n int64, line string)) int64 {
	scanner := bufio.NewScanner(r)
	var n int64
	for scanner.Scan() {
		n++
		each(n, scanner.Text())
	}
	return n
}
