// Package filedb is the minimal source registry the assembler and
// interpreter consult when rendering diagnostics. It is intentionally thin:
// it only ever needs to turn a byte offset into a file back into a
// human-readable file:line:col label.
package filedb

import (
	"fmt"
	"strings"
)

// FileID identifies a source file registered with a FileDb.
type FileID int32

// CodeLoc is a triple (file, start-byte, end-byte) with start <= end. It
// labels every tagged opcode and every diagnostic.
type CodeLoc struct {
	File  FileID
	Start uint32
	End   uint32
}

// Zero is the code location used when a caller has no meaningful source
// location to attach (e.g. a synthesized opcode that does not exist in the
// original typed-function tree).
var Zero = CodeLoc{File: -1}

type file struct {
	name   string
	source string
}

// FileDb is an append-only registry of source files, keyed by FileID.
type FileDb struct {
	files []file
}

// New returns an empty FileDb.
func New() *FileDb {
	return &FileDb{}
}

// Add registers a new source file and returns its FileID.
func (db *FileDb) Add(name, source string) FileID {
	db.files = append(db.files, file{name: name, source: source})
	return FileID(len(db.files) - 1)
}

// Name returns the registered name of id, or "<unknown>" if id is invalid.
func (db *FileDb) Name(id FileID) string {
	if id < 0 || int(id) >= len(db.files) {
		return "<unknown>"
	}
	return db.files[id].name
}

// Resolve turns a byte offset into file id into a 1-based (line, col) pair.
// It returns (0, 0) if id is invalid; an offset past the end of the source
// is clamped to the end.
func (db *FileDb) Resolve(id FileID, offset uint32) (line, col int) {
	if id < 0 || int(id) >= len(db.files) {
		return 0, 0
	}
	src := db.files[id].source
	if int(offset) > len(src) {
		offset = uint32(len(src))
	}
	line = 1 + strings.Count(src[:offset], "\n")
	if nl := strings.LastIndexByte(src[:offset], '\n'); nl >= 0 {
		col = int(offset) - nl
	} else {
		col = int(offset) + 1
	}
	return line, col
}

// Label renders a single-line source label for loc, e.g. "main.c:3:10: int x = y + 1;".
func (db *FileDb) Label(loc CodeLoc) string {
	line, col := db.Resolve(loc.File, loc.Start)
	name := db.Name(loc.File)
	text := db.lineText(loc.File, line)
	return fmt.Sprintf("%s:%d:%d: %s", name, line, col, text)
}

func (db *FileDb) lineText(id FileID, line int) string {
	if id < 0 || int(id) >= len(db.files) || line <= 0 {
		return ""
	}
	lines := strings.Split(db.files[id].source, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}

// Label is a single source-labeled region of a diagnostic.
type Label struct {
	Loc     CodeLoc
	Message string
}

// Diagnostic is a rendered compile- or run-time error: a short machine-
// readable name, a human message, and zero or more source-labeled regions.
type Diagnostic struct {
	ShortName string
	Message   string
	Labels    []Label
}

// Render produces the "short_name: message" header followed by one
// source-labeled region per label, per spec's error format.
func (d Diagnostic) Render(db *FileDb) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", d.ShortName, d.Message)
	for _, l := range d.Labels {
		fmt.Fprintf(&b, "  %s", db.Label(l.Loc))
		if l.Message != "" {
			fmt.Fprintf(&b, " (%s)", l.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.ShortName, d.Message)
}
