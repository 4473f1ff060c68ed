package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/lang/compiler"
)

// asmFile reads and assembles the textual program at path, returning the
// linked Program and the FileDb it was parsed against (needed to label any
// later runtime diagnostic).
func asmFile(path string) (*filedb.FileDb, *compiler.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	files := filedb.New()
	id := files.Add(path, string(src))

	prog, err := compiler.Asm(files, id, string(src))
	if err != nil {
		return nil, nil, err
	}
	return files, prog, nil
}

// Asm assembles the textual program at args[0] and prints its disassembly
// back out, round-tripping through Program to validate that it links.
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	paths := programArgs(args)
	_, prog, err := asmFile(paths[0])
	if err != nil {
		return printError(stdio, err)
	}

	fmt.Fprint(stdio.Stdout, compiler.Dasm(prog))
	return nil
}
