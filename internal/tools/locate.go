// Package tools finds external verifier executables by logical name.
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mizarwork/mvd/internal/paths"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("tool not found")

// NotFoundError lists the candidates tried for a missing tool.
type NotFoundError struct {
	Name       string
	Root       string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found under %s (tried %s)", e.Name, e.Root, strings.Join(e.Candidates, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Kind classifies how a located tool must be launched.
type Kind int

const (
	// KindNative is a binary that can be executed with an argument vector.
	KindNative Kind = iota
	// KindScript is a batch/command script that needs the command interpreter.
	KindScript
)

// Locator searches OS-specific layouts for a tool.
type Locator struct {
	Platform paths.Platform
}

// NewLocator returns a Locator for the current platform.
func NewLocator() *Locator {
	return &Locator{Platform: paths.Current()}
}

// Candidates returns the search order for name under root. Earlier entries
// win over later ones.
func (l *Locator) Candidates(root, name string) []string {
	if !l.Platform.Windows() {
		return []string{
			filepath.Join(root, name),
			filepath.Join(root, "bin", name),
		}
	}
	return []string{
		filepath.Join(root, name+".exe"),
		filepath.Join(root, "bin", name+".exe"),
		filepath.Join(root, name+".bat"),
		filepath.Join(root, "bin", name+".bat"),
		filepath.Join(root, name+".cmd"),
		filepath.Join(root, "bin", name+".cmd"),
		filepath.Join(root, "windows", "bin", name+".exe"),
		filepath.Join(root, "win", "bin", name+".exe"),
	}
}

// Locate returns the first candidate that exists as a regular file.
func (l *Locator) Locate(root, name string) (string, error) {
	candidates := l.Candidates(root, name)
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", &NotFoundError{Name: name, Root: root, Candidates: candidates}
}

// KindOf reports whether path is a native executable or a script.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bat", ".cmd":
		return KindScript
	default:
		return KindNative
	}
}
