// Package paths resolves the three filesystem roots the compile pipeline
// depends on: the tool binaries, the shared message catalog, and the
// scratch workspace.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Default subdirectory names used when a root is not configured.
const (
	DefaultExeSubdir   = "mizar"
	DefaultShareSubdir = "mizar"
	DefaultWorkSubdir  = "mizarwork"
)

// TextSubdir is the workspace subdirectory holding source units. Tools
// are run from the workspace root and address inputs relative to it.
const TextSubdir = "TEXT"

// Platform identifies the OS family the paths are interpreted for.
type Platform struct {
	GOOS string
}

// Current returns the platform the binary was built for.
func Current() Platform {
	return Platform{GOOS: runtime.GOOS}
}

// Windows reports whether the platform belongs to the Windows family.
func (p Platform) Windows() bool {
	return p.GOOS == "windows"
}

// ToolPaths holds the resolved roots. All three fields are absolute and
// carry no trailing separator.
type ToolPaths struct {
	ExecutableRoot string `json:"executable_root"`
	CatalogRoot    string `json:"catalog_root"`
	WorkspaceRoot  string `json:"workspace_root"`
}

// Configured holds the raw, possibly empty, configured values.
type Configured struct {
	ExeDir   string
	ShareDir string
	WorkDir  string
}

// ConfigError reports that the base root could not be determined.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cannot resolve installation base directory: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Resolver turns configured values into ToolPaths.
type Resolver struct {
	Platform Platform
	// BaseRoot returns the directory that defaults and relative values are
	// resolved against. Defaults to InstallBase.
	BaseRoot func() (string, error)
}

// NewResolver returns a Resolver for the current platform.
func NewResolver() *Resolver {
	return &Resolver{Platform: Current(), BaseRoot: InstallBase}
}

// Resolve applies the fallback policy to each configured value. Missing
// leaf directories are not an error; they are created on first use.
func (r *Resolver) Resolve(cfg Configured) (ToolPaths, error) {
	baseFn := r.BaseRoot
	if baseFn == nil {
		baseFn = InstallBase
	}
	base, err := baseFn()
	if err != nil {
		return ToolPaths{}, &ConfigError{Err: err}
	}
	if base == "" {
		return ToolPaths{}, &ConfigError{Err: fmt.Errorf("empty base directory")}
	}

	return ToolPaths{
		ExecutableRoot: r.resolveOne(base, cfg.ExeDir, DefaultExeSubdir),
		CatalogRoot:    r.resolveOne(base, cfg.ShareDir, DefaultShareSubdir),
		WorkspaceRoot:  r.resolveOne(base, cfg.WorkDir, DefaultWorkSubdir),
	}, nil
}

func (r *Resolver) resolveOne(base, configured, fallback string) string {
	var p string
	switch {
	case strings.TrimSpace(configured) == "":
		p = filepath.Join(base, fallback)
	case r.IsAbs(configured):
		p = configured
	default:
		p = filepath.Join(base, configured)
	}
	return TrimSeparators(p)
}

// IsAbs reports whether p is absolute on the resolver's platform. On the
// Windows family drive-letter, UNC and rooted forms are all accepted.
func (r *Resolver) IsAbs(p string) bool {
	if r.Platform.Windows() {
		if len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && isSep(p[2]) {
			return true
		}
		if strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "//") {
			return true
		}
		return len(p) > 0 && isSep(p[0])
	}
	return strings.HasPrefix(p, "/")
}

// TrimSeparators removes trailing slashes and backslashes. A path made only
// of separators collapses to a single one.
func TrimSeparators(p string) string {
	trimmed := strings.TrimRight(p, `/\`)
	if trimmed == "" && p != "" {
		return p[:1]
	}
	return trimmed
}

// InstallBase returns the parent of the directory holding the running
// executable.
func InstallBase() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(filepath.Dir(exe)), nil
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isSep(c byte) bool {
	return c == '/' || c == '\\'
}
