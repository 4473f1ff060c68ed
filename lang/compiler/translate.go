package compiler

import (
	"fmt"

	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/lang/typed"
)

// funcCtx holds the per-function state needed while lowering one function
// body: the assembler being emitted into and the function's symbol entry.
// If/While control flow is given as structured statements, not raw opcode
// indices, so their jumps are emitted with a placeholder target and
// patched once the destination is known (see patchHere).
type funcCtx struct {
	a     *Assembler
	entry *funcEntry
}

func (c *funcCtx) emit(op Op, loc filedb.CodeLoc) int { return c.a.emit(op, loc) }

// patchHere rewrites the Target field of the op at idx to the current end
// of the opcode stream.
func (c *funcCtx) patchHere(idx int) {
	c.a.ops[idx].Op.Target = uint32(len(c.a.ops))
}

func jumpIfZero(bits uint32) Code {
	switch bits {
	case 8:
		return JumpIfZero8
	case 16:
		return JumpIfZero16
	case 32:
		return JumpIfZero32
	default:
		return JumpIfZero64
	}
}

func (c *funcCtx) stmt(s typed.Stmt) error {
	switch s := s.(type) {
	case *typed.ReturnStmt:
		c.emit(Op{Code: Ret}, s.Loc)
		return nil

	case *typed.ReturnValueStmt:
		sz := s.Expr.Type().Size()
		if err := c.expr(s.Expr); err != nil {
			return err
		}
		nparams := int32(len(c.entry.typ.Params))
		c.emit(Op{Code: SetLocal, Var: -(nparams + 1), Offset: 0, Bytes: sz}, s.Loc)
		c.emit(Op{Code: Ret}, s.Loc)
		return nil

	case *typed.ExprStmt:
		if err := c.expr(s.Expr); err != nil {
			return err
		}
		sz := s.Expr.Type().Size()
		if sz > 0 {
			c.emit(Op{Code: Pop, Bytes: sz}, s.Loc)
		}
		return nil

	case *typed.DeclStmt:
		sz := s.Init.Type().Size()
		c.emit(Op{Code: StackAlloc, Bytes: sz}, s.Loc)
		if err := c.expr(s.Init); err != nil {
			return err
		}
		c.emit(Op{Code: PopIntoTopVar, Offset: 0, Bytes: sz}, s.Loc)
		return nil

	case *typed.IfStmt:
		bits := s.Cond.Type().Size() * 8
		if err := c.expr(s.Cond); err != nil {
			return err
		}
		jz := c.emit(Op{Code: jumpIfZero(bits)}, s.Loc)
		for _, st := range s.Then {
			if err := c.stmt(st); err != nil {
				return err
			}
		}
		if len(s.Else) == 0 {
			c.patchHere(jz)
			return nil
		}
		jend := c.emit(Op{Code: Jump}, s.Loc)
		c.patchHere(jz)
		for _, st := range s.Else {
			if err := c.stmt(st); err != nil {
				return err
			}
		}
		c.patchHere(jend)
		return nil

	case *typed.WhileStmt:
		bits := s.Cond.Type().Size() * 8
		loopStart := uint32(len(c.a.ops))
		if err := c.expr(s.Cond); err != nil {
			return err
		}
		jz := c.emit(Op{Code: jumpIfZero(bits)}, s.Loc)
		for _, st := range s.Body {
			if err := c.stmt(st); err != nil {
				return err
			}
		}
		c.emit(Op{Code: Jump, Target: loopStart}, s.Loc)
		c.patchHere(jz)
		return nil

	default:
		return fmt.Errorf("compiler: unhandled statement %T", s)
	}
}

// expr lowers e so that exactly size(e) bytes end up on top of the operand
// stack.
func (c *funcCtx) expr(e typed.Expr) error {
	switch e := e.(type) {
	case *typed.IntLit:
		return c.intLit(e)

	case *typed.StringLit:
		sym := e.Value
		if len(sym) > 16 {
			sym = sym[:16]
		}
		varID := int32(len(c.a.data))
		c.a.data = append(c.a.data, StaticVar{Name: sym, Data: append([]byte(e.Value), 0)})
		c.emit(Op{Code: MakeTempBinaryPtr, PtrVar: varID, Offset: 0}, e.Loc)
		return nil

	case *typed.UninitExpr:
		c.emit(Op{Code: PushUndef, Bytes: e.Ty.Size()}, e.Loc)
		return nil

	case *typed.LocalIdent:
		c.emit(Op{Code: GetLocal, Var: int32(e.Var), Offset: 0, Bytes: e.Ty.Size()}, e.Loc)
		return nil

	case *typed.BinaryExpr:
		if err := c.expr(e.Left); err != nil {
			return err
		}
		if err := c.expr(e.Right); err != nil {
			return err
		}
		c.emit(Op{Code: binOpCode(e.Op)}, e.Loc)
		return nil

	case *typed.ExtendExpr:
		if err := c.expr(e.X); err != nil {
			return err
		}
		c.emit(Op{Code: extendCode(e.Signed, e.FromBits, int(e.Ty.Size())*8)}, e.Loc)
		return nil

	case *typed.DerefExpr:
		if err := c.expr(e.Ptr); err != nil {
			return err
		}
		c.emit(Op{Code: Get, Offset: 0, Bytes: e.Ty.Size()}, e.Loc)
		return nil

	case *typed.MemberExpr:
		return c.member(e)

	case *typed.AddrExpr:
		return c.addr(e)

	case *typed.AssignExpr:
		return c.assign(e)

	case *typed.CallExpr:
		return c.call(e)

	default:
		return fmt.Errorf("compiler: unhandled expression %T", e)
	}
}

func (c *funcCtx) intLit(e *typed.IntLit) error {
	switch e.Ty.Kind {
	case typed.KindI32:
		c.emit(Op{Code: MakeTempI32, I32: int32(e.Value)}, e.Loc)
	case typed.KindI64:
		c.emit(Op{Code: MakeTempI64, I64: e.Value}, e.Loc)
	case typed.KindU64:
		c.emit(Op{Code: MakeTempU64, U64: uint64(e.Value)}, e.Loc)
	case typed.KindI8:
		c.emit(Op{Code: MakeTempI8, I8: int8(e.Value)}, e.Loc)
	default:
		return fmt.Errorf("compiler: integer literal of unsupported type %v", e.Ty.Kind)
	}
	return nil
}

func binOpCode(op typed.BinOp) Code {
	switch op {
	case typed.OpAddU32:
		return AddU32
	case typed.OpAddU64:
		return AddU64
	case typed.OpSubI32:
		return SubI32
	case typed.OpSubI64:
		return SubI64
	case typed.OpSubU64:
		return SubU64
	case typed.OpMulI32:
		return MulI32
	case typed.OpMulI64:
		return MulI64
	case typed.OpMulU64:
		return MulU64
	case typed.OpDivI32:
		return DivI32
	case typed.OpDivI64:
		return DivI64
	case typed.OpDivU64:
		return DivU64
	case typed.OpModI64:
		return ModI64
	case typed.OpCompLtI32:
		return CompLtI32
	case typed.OpCompLtU64:
		return CompLtU64
	case typed.OpCompLeqI32:
		return CompLeqI32
	case typed.OpCompLeqU64:
		return CompLeqU64
	case typed.OpCompEq32:
		return CompEq32
	case typed.OpCompEq64:
		return CompEq64
	case typed.OpCompNeq32:
		return CompNeq32
	default:
		panic(fmt.Sprintf("compiler: unhandled binary op %v", op))
	}
}

// extendCode always keys off the source width (fromBits), reading the
// source-width value in big-endian uniformly across 8/16/32-bit sources,
// resolving the inconsistency noted in spec.md's design notes where
// SExtend16To32/64 read via i16::from_be but the 8-bit variants read raw.
func extendCode(signed bool, fromBits, toBits int) Code {
	switch {
	case signed && fromBits == 8 && toBits == 16:
		return SExtend8To16
	case signed && fromBits == 8 && toBits == 32:
		return SExtend8To32
	case signed && fromBits == 8 && toBits == 64:
		return SExtend8To64
	case signed && fromBits == 16 && toBits == 32:
		return SExtend16To32
	case signed && fromBits == 16 && toBits == 64:
		return SExtend16To64
	case signed && fromBits == 32 && toBits == 64:
		return SExtend32To64
	case !signed && fromBits == 8 && toBits == 16:
		return ZExtend8To16
	case !signed && fromBits == 8 && toBits == 32:
		return ZExtend8To32
	case !signed && fromBits == 8 && toBits == 64:
		return ZExtend8To64
	case !signed && fromBits == 16 && toBits == 32:
		return ZExtend16To32
	case !signed && fromBits == 16 && toBits == 64:
		return ZExtend16To64
	case !signed && fromBits == 32 && toBits == 64:
		return ZExtend32To64
	default:
		panic(fmt.Sprintf("compiler: unsupported extension %d -> %d (signed=%v)", fromBits, toBits, signed))
	}
}

// member lowers both value and pointer member access per spec.md §4.1.
func (c *funcCtx) member(e *typed.MemberExpr) error {
	sz := e.Ty.Size()
	if e.ThroughPtr {
		if err := c.expr(e.Base); err != nil {
			return err
		}
		c.emit(Op{Code: Get, Offset: e.FieldOff, Bytes: sz}, e.Loc)
		return nil
	}

	// size(base) >= field_offset + size(field) is a precondition enforced by
	// the (external) type checker; violating it here means the typed-function
	// tree itself is malformed, a compiler bug rather than a user error.
	if e.BaseSize < e.FieldOff+sz {
		panic(fmt.Sprintf("compiler: member access %q out of bounds of base (base=%d, offset=%d, size=%d)",
			e.Field, e.BaseSize, e.FieldOff, sz))
	}

	if err := c.expr(e.Base); err != nil {
		return err
	}
	if above := e.BaseSize - e.FieldOff - sz; above > 0 {
		c.emit(Op{Code: Pop, Bytes: above}, e.Loc)
	}
	c.emit(Op{Code: PopKeep, Drop: e.FieldOff, Keep: sz}, e.Loc)
	return nil
}

func (c *funcCtx) addr(e *typed.AddrExpr) error {
	switch lv := e.Lvalue.(type) {
	case *typed.LocalIdent:
		c.emit(Op{Code: MakeTempLocalStackPtr, Var: int32(lv.Var), Offset: 0}, e.Loc)
		return nil
	case *typed.DerefExpr:
		// &*p simplifies to evaluating p directly.
		return c.expr(lv.Ptr)
	default:
		return fmt.Errorf("compiler: cannot take address of %T", e.Lvalue)
	}
}

func (c *funcCtx) assign(e *typed.AssignExpr) error {
	sz := e.Value.Type().Size()
	if err := c.expr(e.Value); err != nil {
		return err
	}
	if e.Target.Local {
		c.emit(Op{Code: PushDup, Bytes: sz}, e.Loc)
		c.emit(Op{Code: SetLocal, Var: int32(e.Target.Var), Offset: 0, Bytes: sz}, e.Loc)
		return nil
	}
	if err := c.expr(e.Target.Ptr); err != nil {
		return err
	}
	// Stack is now "... value ptr" (value deepest, ptr on top), but Set pops
	// its data operand before its pointer operand. Swap the two segments so
	// the value ends up on top where Set expects it; Set itself echoes the
	// written value back onto the stack afterward, so no separate PushDup is
	// needed here the way the local-target case needs one.
	c.emit(Op{Code: Swap, Top: 8, Bottom: sz}, e.Loc)
	c.emit(Op{Code: Set, Offset: 0, Bytes: sz}, e.Loc)
	return nil
}

// call lowers a function call per spec.md §4.1's Call lowering procedure.
func (c *funcCtx) call(e *typed.CallExpr) error {
	retSize := e.Ty.Size()
	c.emit(Op{Code: StackAlloc, Bytes: retSize}, e.Loc)

	for _, arg := range e.Args {
		sz := arg.Type().Size()
		c.emit(Op{Code: StackAlloc, Bytes: sz}, e.Loc)
		if err := c.expr(arg); err != nil {
			return err
		}
		c.emit(Op{Code: PopIntoTopVar, Offset: 0, Bytes: sz}, e.Loc)
	}

	// varargs count slot: emitted whenever the callee is declared varargs.
	// printf is always treated as variadic here regardless of how (or
	// whether) it appears in the typed-function tree's symbol table, since
	// it is a library function the assembler never sees a declaration for.
	varargs := len(e.Args)
	isVarargs := e.Symbol == "printf"
	if entry, ok := c.a.funcs.Get(e.Symbol); ok {
		isVarargs = isVarargs || entry.typ.Varargs
	}
	if isVarargs {
		c.emit(Op{Code: StackAlloc, Bytes: 4}, e.Loc)
		c.emit(Op{Code: MakeTempI32, I32: int32(varargs)}, e.Loc)
		c.emit(Op{Code: PopIntoTopVar, Offset: 0, Bytes: 4}, e.Loc)
	}

	c.emit(Op{Code: Call, Sym: e.Symbol}, e.Loc)

	for range e.Args {
		c.emit(Op{Code: StackDealloc}, e.Loc)
	}
	if isVarargs {
		c.emit(Op{Code: StackDealloc}, e.Loc)
	}
	if retSize == 0 {
		c.emit(Op{Code: StackDealloc}, e.Loc)
	} else {
		c.emit(Op{Code: StackAddToTemp}, e.Loc)
	}
	return nil
}
