package execsession

import "regexp"

// dsrPattern matches Device Status Report sequences: a program's query
// (ESC[6n) and the terminal's own cursor-position reply (ESC[<row>;<col>R).
// PTY sessions echo both into their output stream; neither is meaningful
// once captured into a transcript, so both are stripped before a chunk is
// appended to a session's buffers.
var dsrPattern = regexp.MustCompile(`\x1b\[(?:6n|\d+;\d+R)`)

// StripDSR removes Device Status Report escape sequences from s.
func StripDSR(s string) string {
	if s == "" {
		return s
	}
	return dsrPattern.ReplaceAllString(s, "")
}
