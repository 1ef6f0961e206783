package tablebridge

import "path/filepath"

// VenvPackagesDir is the site-packages directory of the project virtual
// environment, relative to the working directory. It is inserted at the
// front of the interpreter's sys.path before the embedded module is loaded.
//
// Only linux and windows are supported. There is no fallback for other
// platforms: the package does not build there.
func VenvPackagesDir() string {
	return `.venv\Lib\site-packages`
}

// VenvPython is the interpreter inside the virtual environment at root.
func VenvPython(root string) string {
	return filepath.Join(root, "Scripts", "python.exe")
}

// Windows venvs do not encode the interpreter version in the path.
const venvPythonMinor = ""
