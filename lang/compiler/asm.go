package compiler

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dolthub/swiss"
	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/lang/typed"
)

// libFuncs is the set of symbols that, if undefined at link time, are
// rewritten to LibCall rather than failing. printf and exit are always
// required; malloc/realloc/memcpy are registered optionally by the host,
// but any call to them at compile time still resolves as a LibCall: it is
// the interpreter's library table, not the assembler, that decides whether
// the symbol is actually callable at run time.
var libFuncs = map[string]bool{
	"printf":  true,
	"exit":    true,
	"malloc":  true,
	"realloc": true,
	"memcpy":  true,
}

type funcEntry struct {
	typ       typed.FuncType
	def       *typed.FuncDef
	headerIdx int // -1 until the header opcode has been emitted
}

// Assembler accumulates functions added via AddFile and produces a single
// linked Program via Assemble. It does not back-patch call sites during
// emission; symbol references are recorded and resolved in one final pass
// over the finished opcode stream (see Assemble), which avoids tracking
// per-symbol call-site lists and lets files be added incrementally.
type Assembler struct {
	files *filedb.FileDb
	funcs *swiss.Map[string, *funcEntry]
	ops   []TaggedOpcode
	data  []StaticVar

	log *slog.Logger
}

// New creates an empty Assembler. files is shared with the caller for the
// lifetime of compilation; diagnostics reference it by FileID.
func New(files *filedb.FileDb) *Assembler {
	return &Assembler{
		files: files,
		funcs: swiss.NewMap[string, *funcEntry](8),
		log:   slog.Default(),
	}
}

// AddFile appends the functions in table to the program being built,
// applying spec's first-encounter/mismatch/redefinition/declaration-only
// rules per symbol.
func (a *Assembler) AddFile(table typed.Table) error {
	// Deterministic order so two runs over the same table emit identical
	// opcode streams (maps have randomized iteration order in Go).
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	a.log.Debug("assembling file", "functions", len(names))

	for _, name := range names {
		rec := table[name]
		existing, ok := a.funcs.Get(name)
		if !ok {
			entry := &funcEntry{typ: rec.Type, headerIdx: -1}
			a.funcs.Put(name, entry)
			if rec.Def != nil {
				if err := a.emitDef(name, entry, rec.Def); err != nil {
					return err
				}
			}
			continue
		}

		if !existing.typ.Equal(rec.Type) {
			return filedb.Diagnostic{
				ShortName: "func_decl_mismatch",
				Message:   fmt.Sprintf("conflicting declarations of %q", name),
				Labels: []filedb.Label{
					{Loc: existing.typ.Loc, Message: "previous declaration"},
					{Loc: rec.Type.Loc, Message: "conflicting declaration"},
				},
			}
		}

		if rec.Def != nil {
			if existing.def != nil {
				return filedb.Diagnostic{
					ShortName: "func_redef",
					Message:   fmt.Sprintf("redefinition of %q", name),
					Labels: []filedb.Label{
						{Loc: existing.def.Loc, Message: "first defined here"},
						{Loc: rec.Def.Loc, Message: "redefined here"},
					},
				}
			}
			if err := a.emitDef(name, existing, rec.Def); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Assembler) emitDef(name string, entry *funcEntry, def *typed.FuncDef) error {
	entry.def = def
	entry.headerIdx = len(a.ops)
	a.emit(Op{Code: Func, Sym: name, NumParams: int32(len(entry.typ.Params)), Varargs: entry.typ.Varargs}, def.Loc)

	c := &funcCtx{a: a, entry: entry}
	for _, s := range def.Body {
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	// Unconditional safety terminator: a statically reachable Ret will
	// already have executed and returned before this is ever reached.
	a.emit(Op{Code: Ret}, def.Loc)
	return nil
}

func (a *Assembler) emit(op Op, loc filedb.CodeLoc) int {
	idx := len(a.ops)
	a.ops = append(a.ops, TaggedOpcode{Op: op, Loc: loc})
	return idx
}

// Assemble finalizes the build: resolves every Call(symbol) to either
// Call(pc) or LibCall(symbol), fails if main is undefined, and returns the
// linked Program.
func (a *Assembler) Assemble() (*Program, error) {
	for i := range a.ops {
		op := &a.ops[i].Op
		if op.Code != Call {
			continue
		}
		entry, ok := a.funcs.Get(op.Sym)
		if ok && entry.headerIdx >= 0 {
			op.Target = uint32(entry.headerIdx)
			continue
		}
		if libFuncs[op.Sym] {
			op.Code = LibCall
			continue
		}

		labels := []filedb.Label{{Loc: a.ops[i].Loc, Message: "called here"}}
		if ok {
			labels = append(labels, filedb.Label{Loc: entry.typ.Loc, Message: "declared here"})
		}
		return nil, filedb.Diagnostic{
			ShortName: "undefined_symbol",
			Message:   fmt.Sprintf("call to undefined function %q", op.Sym),
			Labels:    labels,
		}
	}

	main, ok := a.funcs.Get("main")
	if !ok || main.def == nil {
		return nil, filedb.Diagnostic{
			ShortName: "missing_main",
			Message:   "missing main function definition",
		}
	}

	return &Program{
		Files:   a.files,
		Ops:     a.ops,
		Data:    a.data,
		MainIdx: uint32(main.headerIdx),
	}, nil
}
