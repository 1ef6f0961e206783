package tablebridge

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// PythonEnvironment is an interpreter installation the bridge can run.
type PythonEnvironment struct {
	// Name identifies the environment in logs ("system", "venv", "uv").
	Name string

	// PythonPath is the full path to the Python executable.
	PythonPath string

	// PythonVersion is the detected Python version (e.g., 3.12.6).
	PythonVersion Version

	// SitePackagesPath is the interpreter's primary site-packages directory.
	SitePackagesPath string
}

// CreateEnvironmentFromExecutable probes pythonPath for its version and
// site-packages directory.
func CreateEnvironmentFromExecutable(pythonPath string) (*PythonEnvironment, error) {
	env := &PythonEnvironment{
		Name:       "system",
		PythonPath: pythonPath,
	}

	versionOutput, err := env.RunPythonReadCombined("--version")
	if err != nil {
		return nil, fmt.Errorf("error getting Python version: %w", err)
	}
	env.PythonVersion, err = ParsePythonVersion(strings.TrimSpace(versionOutput))
	if err != nil {
		return nil, fmt.Errorf("error parsing Python version: %w", err)
	}

	sitePackagesOutput, err := env.RunPythonReadStdout("-c", "import site; print(site.getsitepackages()[0])")
	if err != nil {
		return nil, fmt.Errorf("error getting site-packages path: %w", err)
	}
	env.SitePackagesPath = strings.TrimSpace(sitePackagesOutput)

	return env, nil
}

// CreateEnvironmentFromSystem uses the Python found on PATH.
//
// On Unix it looks for "python3" then "python". On Windows it tries the "py"
// launcher first, then "python" while skipping the Microsoft Store
// placeholder executables.
func CreateEnvironmentFromSystem() (*PythonEnvironment, error) {
	pythonPath := ""
	if runtime.GOOS == "windows" {
		if p, err := exec.LookPath("py"); err == nil {
			pythonPath = p
		} else {
			wout, err := exec.Command("where", "python").Output()
			if err != nil {
				return nil, fmt.Errorf("error running 'where python': %w", err)
			}
			for _, p := range strings.Split(string(wout), "\n") {
				p = strings.TrimSpace(p)
				if p != "" && !strings.Contains(p, `Microsoft\WindowsApps`) {
					pythonPath = p
					break
				}
			}
			if pythonPath == "" {
				return nil, fmt.Errorf("python not found")
			}
		}
	} else {
		var err error
		pythonPath, err = exec.LookPath("python3")
		if err != nil {
			pythonPath, err = exec.LookPath("python")
			if err != nil {
				return nil, fmt.Errorf("python not found: %w", err)
			}
		}
	}

	return CreateEnvironmentFromExecutable(pythonPath)
}

// CreateEnvironmentFromVenv uses the interpreter of the virtual environment
// at root.
func CreateEnvironmentFromVenv(root string) (*PythonEnvironment, error) {
	pythonPath := VenvPython(root)
	if _, err := os.Stat(pythonPath); err != nil {
		return nil, fmt.Errorf("no interpreter in virtual environment %s: %w", root, err)
	}

	env, err := CreateEnvironmentFromExecutable(pythonPath)
	if err != nil {
		return nil, err
	}
	env.Name = "venv"
	return env, nil
}

// DiscoverEnvironment picks the interpreter to run, in order: cfg.Python,
// the virtual environment at cfg.Venv, a uv-managed Python matching the
// version in cfg.PythonVersionFile, then the system Python.
func DiscoverEnvironment(cfg *Config) (*PythonEnvironment, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	env, err := discover(cfg)
	if err != nil {
		return nil, err
	}

	env.warnPackagePathMismatch()
	return env, nil
}

// warnPackagePathMismatch logs when the packages VenvPackagesDir points at
// were built for another interpreter version than env. The interpreter's own
// site-packages is logged beside it.
func (env *PythonEnvironment) warnPackagePathMismatch() bool {
	if venvPythonMinor == "" || env.PythonVersion.MinorString() == venvPythonMinor {
		return false
	}
	Logger().Warn("interpreter version does not match the package path",
		zap.String("python", env.PythonPath),
		zap.String("version", env.PythonVersion.String()),
		zap.String("site_packages", env.SitePackagesPath),
		zap.String("package_path", VenvPackagesDir()),
	)
	return true
}

func discover(cfg *Config) (*PythonEnvironment, error) {
	if cfg.Python != "" {
		return CreateEnvironmentFromExecutable(cfg.Python)
	}

	if cfg.Venv != "" {
		if _, err := os.Stat(VenvPython(cfg.Venv)); err == nil {
			return CreateEnvironmentFromVenv(cfg.Venv)
		}
	}

	if cfg.PythonVersionFile != "" {
		if version, err := ReadPythonVersionFile(cfg.PythonVersionFile); err == nil {
			env, err := uvEnvironment(version)
			if err == nil {
				return env, nil
			}
			Logger().Debug("no uv-managed interpreter", zap.String("version", version), zap.Error(err))
		}
	}

	return CreateEnvironmentFromSystem()
}

func uvEnvironment(version string) (*PythonEnvironment, error) {
	pythonPath, err := LocateUVPython(version)
	if err != nil {
		return nil, err
	}
	env, err := CreateEnvironmentFromExecutable(pythonPath)
	if err != nil {
		return nil, err
	}
	env.Name = "uv"
	return env, nil
}
