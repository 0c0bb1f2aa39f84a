// Package diagnostics decodes the positional error reports written by the
// verifier tools and resolves their codes against the shared message
// catalog.
package diagnostics

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	// ReportExt is the extension of a tool's error report.
	ReportExt = ".err"
	// CatalogFile is the catalog file name under the catalog root.
	CatalogFile = "mizar.msg"
	// UnknownMessage is used for codes missing from the catalog.
	UnknownMessage = "Unknown error"
)

var (
	reportLine    = regexp.MustCompile(`(\d+)\s+(\d+)\s+(\d+)`)
	catalogHeader = regexp.MustCompile(`# (\d+)`)
)

// Diagnostic is one decoded error record.
type Diagnostic struct {
	Code    int    `json:"code"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: *%d %s", d.Line, d.Column, d.Code, d.Message)
}

// ReportPath returns the error report path for an input file: the same
// path with its extension replaced.
func ReportPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ReportExt
}

// CatalogPath returns the catalog location under a catalog root.
func CatalogPath(catalogRoot string) string {
	return filepath.Join(catalogRoot, CatalogFile)
}

// Decode reads the error report and resolves each entry against the
// catalog. A missing report means the stage was clean and yields an empty
// list. A missing catalog leaves every message as UnknownMessage.
func Decode(reportPath, catalogPath string) ([]Diagnostic, error) {
	entries, err := readReport(reportPath)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	catalog, err := LoadCatalog(catalogPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	diags := make([]Diagnostic, 0, len(entries))
	for _, d := range entries {
		d.Message = catalog.Message(d.Code)
		diags = append(diags, d)
	}
	return diags, nil
}

func readReport(path string) ([]Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open error report: %w", err)
	}
	defer f.Close()

	var entries []Diagnostic
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m := reportLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ln, err1 := strconv.Atoi(m[1])
		col, err2 := strconv.Atoi(m[2])
		code, err3 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil || err3 != nil {
			// Out of int range; not a record this decoder understands.
			continue
		}
		entries = append(entries, Diagnostic{Code: code, Line: ln, Column: col})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read error report: %w", err)
	}
	return entries, nil
}

// Catalog maps diagnostic codes to messages.
type Catalog map[int]string

// Message returns the message for code, or UnknownMessage.
func (c Catalog) Message(code int) string {
	if msg, ok := c[code]; ok {
		return msg
	}
	return UnknownMessage
}

// LoadCatalog parses a catalog file. A line containing "# <code>" opens a
// record; the next non-blank line is its message. Everything else is
// ignored. The returned catalog is never nil.
func LoadCatalog(path string) (Catalog, error) {
	catalog := make(Catalog)

	f, err := os.Open(path)
	if err != nil {
		return catalog, fmt.Errorf("failed to open message catalog: %w", err)
	}
	defer f.Close()

	pending, haveHeader := 0, false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := catalogHeader.FindStringSubmatch(line); m != nil {
			code, err := strconv.Atoi(m[1])
			if err != nil {
				haveHeader = false
				continue
			}
			pending, haveHeader = code, true
			continue
		}
		if haveHeader {
			catalog[pending] = line
			haveHeader = false
		}
	}
	if err := sc.Err(); err != nil {
		return catalog, fmt.Errorf("failed to read message catalog: %w", err)
	}
	return catalog, nil
}
