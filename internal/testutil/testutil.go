// Package testutil provides shared test helpers used across packages.
// It must not import other internal packages, since their tests import it.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mizarwork/mvd/internal/paths"
)

// DiscardLogger returns a slog.Logger that discards all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPaths creates bin, share and work roots under a fresh temp
// directory, with the TEXT subdirectory and an empty catalog in place.
func TestPaths(t testing.TB) paths.ToolPaths {
	t.Helper()
	base := t.TempDir()
	tp := paths.ToolPaths{
		ExecutableRoot: filepath.Join(base, "bin"),
		CatalogRoot:    filepath.Join(base, "share"),
		WorkspaceRoot:  filepath.Join(base, "work"),
	}
	for _, dir := range []string{tp.ExecutableRoot, tp.CatalogRoot, filepath.Join(tp.WorkspaceRoot, paths.TextSubdir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return tp
}

// WriteCatalog writes a message catalog under the catalog root.
func WriteCatalog(t testing.TB, tp paths.ToolPaths, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(tp.CatalogRoot, "mizar.msg"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
}
