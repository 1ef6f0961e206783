package tablebridge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// FindUVPython parses the output of `uv python list` and returns the paths of
// installed interpreters whose version is version.N (version is "major.minor").
// Entries that are only available for download have no path and are skipped.
func FindUVPython(listOutput, version string) []string {
	v := regexp.QuoteMeta(version)
	pat := regexp.MustCompile(`(?m)^\S+-` + v + `\.\d+-\S+\s+(\S+-` + v + `\.\d+-\S+)`)

	var paths []string
	for _, m := range pat.FindAllStringSubmatch(listOutput, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// ReadPythonVersionFile reads a .python-version file.
func ReadPythonVersionFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return version, nil
}

// LocateUVPython asks uv for its managed interpreters and returns the single
// one matching version.
func LocateUVPython(version string) (string, error) {
	out, err := exec.Command("uv", "python", "list").Output()
	if err != nil {
		return "", fmt.Errorf("uv python list: %w", err)
	}

	matches := FindUVPython(string(out), version)
	if len(matches) != 1 {
		return "", fmt.Errorf("expected one uv-managed python %s, found %d", version, len(matches))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving uv python path: %w", err)
	}
	return resolveUVPath(matches[0], home), nil
}

// resolveUVPath makes p absolute. On Windows uv lists its interpreters
// relative to the user's home directory.
func resolveUVPath(p, home string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}
