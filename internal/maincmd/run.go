package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/nicholaslyang/tci/lang/machine"
)

// Run assembles the textual program at args[0] and executes it, forwarding
// everything after a literal "--" as the guest's argv. With --op-budget
// set, execution stops after that many opcodes and the interpreter's
// diagnostic position is reported instead of running to completion.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	paths := programArgs(args)
	argv := guestArgs(args)

	files, prog, err := asmFile(paths[0])
	if err != nil {
		return printError(stdio, err)
	}

	it := machine.New(prog, argv)

	if c.OpBudget > 0 {
		_, done, err := it.RunOpCount(stdio.Stdout, c.OpBudget)
		if err != nil {
			return printError(stdio, err)
		}
		if !done {
			depth, fp, pc, loc := it.Diagnostic()
			fmt.Fprintf(stdio.Stdout, "stopped after %d opcodes: depth=%d fp=%d pc=%d loc=%s\n",
				c.OpBudget, depth, fp, pc, files.Label(loc))
		}
		return nil
	}

	code, err := it.Run(stdio.Stdout)
	if err != nil {
		return printError(stdio, err)
	}
	if code != 0 {
		return printError(stdio, fmt.Errorf("program exited with code %d", code))
	}
	return nil
}
