package tablebridge

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const (
	// DefaultModuleName and DefaultModuleFile label the embedded module.
	DefaultModuleName = "hello"
	DefaultModuleFile = "hello.py"

	// DefaultFunction is the attribute invoked on the embedded module.
	DefaultFunction = "line_graph"
)

// ModuleSource is Python source compiled into the host binary and loaded into
// the interpreter under Name, with File used for __file__ and tracebacks.
type ModuleSource struct {
	Name   string
	File   string
	Source string
}

// NewModuleFromString creates a ModuleSource. Empty name and file fall back
// to DefaultModuleName and DefaultModuleFile.
func NewModuleFromString(name, file, source string) ModuleSource {
	if name == "" {
		name = DefaultModuleName
	}
	if file == "" {
		file = DefaultModuleFile
	}
	return ModuleSource{Name: name, File: file, Source: source}
}

// Fingerprint is the hex blake3 digest of the source, identifying exactly
// which build of the script a binary carries.
func (m ModuleSource) Fingerprint() string {
	sum := blake3.Sum256([]byte(m.Source))
	return hex.EncodeToString(sum[:])
}
