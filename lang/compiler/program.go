package compiler

import "github.com/nicholaslyang/tci/internal/filedb"

// StaticVar is one static-segment variable the assembler builds while
// translating string literals. It is defined here, rather than imported
// from package machine, to avoid a machine -> compiler -> machine import
// cycle; machine.New loads each StaticVar of a *compiler.Program into its
// own binary-segment VarBuffer.
type StaticVar struct {
	Name string // debug symbol, usually the literal's first few bytes
	Data []byte
}

// Program is the assembler's output: an opcode array, static data to be
// loaded into the binary segment before execution, a reference to the file
// database used to label those opcodes, and the opcode index of main's
// Func header.
type Program struct {
	Files   *filedb.FileDb
	Ops     []TaggedOpcode
	Data    []StaticVar
	MainIdx uint32
}
