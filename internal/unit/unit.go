// Package unit extracts named source units from documents containing
// <mizar NAME>...</mizar> fragments.
package unit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Ext is the source unit file extension.
	Ext = ".miz"
	// MaxStemLen is the longest stem the verifier accepts.
	MaxStemLen = 8
)

var (
	fragmentRe = regexp.MustCompile(`(?s)<mizar\s+([^>]+)>(.*?)</mizar>`)
	stemRe     = regexp.MustCompile(`^[A-Za-z0-9_']+$`)
)

// ErrNoUnit is returned when a document contains no fragments.
var ErrNoUnit = errors.New("Mizar content not found")

// ValidationError rejects a request before any file or process is touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SourceUnit is a named proof source ready to be written to the workspace.
type SourceUnit struct {
	Stem    string
	Content string
}

// FileName returns the workspace file name for the unit.
func (u SourceUnit) FileName() string {
	return u.Stem + Ext
}

// Extract combines every fragment of doc into one SourceUnit. All
// fragments must name the same stem. Each fragment body is trimmed and
// terminated by a newline.
func Extract(doc string) (SourceUnit, error) {
	matches := fragmentRe.FindAllStringSubmatch(doc, -1)
	if len(matches) == 0 {
		return SourceUnit{}, ErrNoUnit
	}

	var (
		stem    string
		content strings.Builder
	)
	for i, m := range matches {
		s, err := ValidateStem(m[1])
		if err != nil {
			return SourceUnit{}, err
		}
		if i == 0 {
			stem = s
		} else if s != stem {
			return SourceUnit{}, &ValidationError{
				Message: fmt.Sprintf("File name mismatch in <mizar> tags: '%s' and '%s'", stem, s),
			}
		}
		content.WriteString(strings.TrimSpace(m[2]))
		content.WriteString("\n")
	}
	return SourceUnit{Stem: stem, Content: content.String()}, nil
}

// ValidateStem normalizes a declared unit name and checks it. A trailing
// ".miz" (any case) is dropped; surrounding whitespace is ignored.
func ValidateStem(name string) (string, error) {
	stem := strings.TrimSpace(name)
	if len(stem) >= len(Ext) && strings.EqualFold(stem[len(stem)-len(Ext):], Ext) {
		stem = stem[:len(stem)-len(Ext)]
	}
	if !stemRe.MatchString(stem) || len(stem) > MaxStemLen {
		return "", &ValidationError{
			Message: fmt.Sprintf("Invalid characters in file name: '%s'. Only letters, numbers, underscores (_), and apostrophes (') are allowed, up to %d characters.", stem, MaxStemLen),
		}
	}
	return stem, nil
}
