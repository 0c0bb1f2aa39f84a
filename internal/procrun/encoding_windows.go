//go:build windows

package procrun

import (
	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding"
)

// platformEncoding decodes from the active ANSI code page, which the
// verifier tools write in on Windows.
func platformEncoding() encoding.Encoding {
	return codePageEncoding(windows.GetACP())
}
