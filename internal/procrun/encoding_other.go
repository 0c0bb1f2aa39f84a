//go:build !windows

package procrun

import "golang.org/x/text/encoding"

func platformEncoding() encoding.Encoding {
	return nil
}
