package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/nicholaslyang/tci/lang/compiler"
)

// Dasm parses the textual program at args[0] and re-renders it alongside a
// summary line (op count, static-data count, main's entry index), the
// linker-facing view of Asm's "does this link" check.
func (c *Cmd) Dasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	paths := programArgs(args)
	_, prog, err := asmFile(paths[0])
	if err != nil {
		return printError(stdio, err)
	}

	fmt.Fprintf(stdio.Stdout, "; %d ops, %d static vars, main at %d\n", len(prog.Ops), len(prog.Data), prog.MainIdx)
	fmt.Fprint(stdio.Stdout, compiler.Dasm(prog))
	return nil
}
