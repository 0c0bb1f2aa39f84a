package procrun

import "strings"

// QuoteCmdArg quotes one argument for the Windows command interpreter.
// Embedded double quotes are doubled.
func QuoteCmdArg(arg string) string {
	return `"` + strings.ReplaceAll(arg, `"`, `""`) + `"`
}

// scriptCommandLine builds the interpreter command line for a batch
// script. Every element, the script path included, is quoted on its own;
// /s makes the interpreter strip only the outermost pair of quotes.
func scriptCommandLine(interpreter, script string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, QuoteCmdArg(script))
	for _, a := range args {
		parts = append(parts, QuoteCmdArg(a))
	}
	return QuoteCmdArg(interpreter) + ` /d /s /c "` + strings.Join(parts, " ") + `"`
}
