package typed

import "github.com/nicholaslyang/tci/internal/filedb"

// Param is one formal parameter of a function type.
type Param struct {
	Name string
	Type Type
}

// FuncType is the declared shape of a function: its location, parameter
// list, return type and varargs flag. Two FuncTypes for the same symbol
// that disagree on the parameters, return type or varargs flag are a
// func_decl_mismatch; the location is not compared.
type FuncType struct {
	Loc      filedb.CodeLoc
	Params   []Param
	Return   Type
	Varargs  bool
}

// Equal reports whether a and b describe the same function shape, ignoring
// source location.
func (a FuncType) Equal(b FuncType) bool {
	if a.Varargs != b.Varargs || len(a.Params) != len(b.Params) {
		return false
	}
	// Type contains a slice field (Fields), so it is not a comparable type;
	// compare by kind+size, which is sufficient for the struct layouts this
	// module constructs (field lists are never mutated after construction).
	if a.Return.Kind != b.Return.Kind || a.Return.Size() != b.Return.Size() {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Type.Kind != b.Params[i].Type.Kind ||
			a.Params[i].Type.Size() != b.Params[i].Type.Size() {
			return false
		}
	}
	return true
}

// FuncDef is a function definition: its location and its statement body.
type FuncDef struct {
	Loc  filedb.CodeLoc
	Body []Stmt
}

// Record is what the assembler's symbol table maps a symbol name to: its
// declared type, and, if defined in this translation unit (or one already
// added), its body.
type Record struct {
	Type FuncType
	Def  *FuncDef
}

// Table is the typed-function tree the assembler consumes: a mapping from
// symbol name to its function record. It models one translation unit's
// worth of declarations/definitions, as would be produced by a type checker
// from one source file.
type Table map[string]Record

// Stmt is one statement in a function body.
type Stmt interface {
	Pos() filedb.CodeLoc
	isStmt()
}

// ReturnValueStmt evaluates Expr and returns it from the enclosing function.
type ReturnValueStmt struct {
	Loc  filedb.CodeLoc
	Expr Expr
}

func (s *ReturnValueStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*ReturnValueStmt) isStmt()               {}

// ReturnStmt returns from the enclosing void function.
type ReturnStmt struct {
	Loc filedb.CodeLoc
}

func (s *ReturnStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*ReturnStmt) isStmt()               {}

// ExprStmt evaluates Expr and discards its result.
type ExprStmt struct {
	Loc  filedb.CodeLoc
	Expr Expr
}

func (s *ExprStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*ExprStmt) isStmt()               {}

// DeclStmt declares a new local variable, initialized by Init. Var is the
// local's declaration-order index (0-based, within this function).
type DeclStmt struct {
	Loc  filedb.CodeLoc
	Var  int
	Init Expr
}

func (s *DeclStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*DeclStmt) isStmt()               {}

// IfStmt and WhileStmt are not present in the distilled statement-kind list,
// which names only {Return-Value, Return, Expr, Decl}. They are supplemented
// here: the opcode set already includes a full Jump/JumpIfZero/JumpIfNotZero
// family, and the binary-search end-to-end scenario this system is required
// to support has no other way to express a loop. Lowering is ordinary
// structured control flow, not goto (gotos remain a non-goal).
type IfStmt struct {
	Loc        filedb.CodeLoc
	Cond       Expr
	Then, Else []Stmt
}

func (s *IfStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*IfStmt) isStmt()               {}

// WhileStmt loops Body while Cond is non-zero.
type WhileStmt struct {
	Loc  filedb.CodeLoc
	Cond Expr
	Body []Stmt
}

func (s *WhileStmt) Pos() filedb.CodeLoc { return s.Loc }
func (*WhileStmt) isStmt()               {}

// Expr is one expression. Every Expr knows its own result type, per
// spec.md's invariant that evaluating e leaves exactly size(e) bytes on the
// operand stack.
type Expr interface {
	Pos() filedb.CodeLoc
	Type() Type
	isExpr()
}

type exprBase struct {
	Loc filedb.CodeLoc
	Ty  Type
}

func (e exprBase) Pos() filedb.CodeLoc { return e.Loc }
func (e exprBase) Type() Type          { return e.Ty }
func (exprBase) isExpr()               {}

// IntLit is an integer literal of the given type (I8, I32, I64 or U64).
type IntLit struct {
	exprBase
	Value int64
}

func NewIntLit(loc filedb.CodeLoc, ty Type, v int64) *IntLit {
	return &IntLit{exprBase: exprBase{Loc: loc, Ty: ty}, Value: v}
}

// StringLit is a string literal; its type is always a char pointer.
type StringLit struct {
	exprBase
	Value string
}

func NewStringLit(loc filedb.CodeLoc, v string) *StringLit {
	return &StringLit{exprBase: exprBase{Loc: loc, Ty: PtrTo(I8)}, Value: v}
}

// UninitExpr pushes size(Ty) undefined bytes, e.g. for `int x;` with no
// initializer.
type UninitExpr struct {
	exprBase
}

func NewUninitExpr(loc filedb.CodeLoc, ty Type) *UninitExpr {
	return &UninitExpr{exprBase{Loc: loc, Ty: ty}}
}

// LocalIdent references a previously-declared local or parameter by its
// frame-relative variable index (matching the assembler's Call frame ABI:
// negative for parameters/return slot, non-negative for locals).
type LocalIdent struct {
	exprBase
	Var int
}

func NewLocalIdent(loc filedb.CodeLoc, ty Type, v int) *LocalIdent {
	return &LocalIdent{exprBase: exprBase{Loc: loc, Ty: ty}, Var: v}
}

// BinOp is an arithmetic operator, typed by operand/result width, matching
// the opcode set's AddU32/AddU64/SubI32/... family one-to-one.
type BinOp uint8

const (
	OpAddU32 BinOp = iota
	OpAddU64
	OpSubI32
	OpSubI64
	OpSubU64
	OpMulI32
	OpMulI64
	OpMulU64
	OpDivI32
	OpDivI64
	OpDivU64
	OpModI64
	OpCompLtI32
	OpCompLtU64
	OpCompLeqI32
	OpCompLeqU64
	OpCompEq32
	OpCompEq64
	OpCompNeq32
)

// BinaryExpr is `Left Op Right`; the assembler evaluates Left then Right,
// leaving the stack as "... left right" with Right deepest-popped.
type BinaryExpr struct {
	exprBase
	Op          BinOp
	Left, Right Expr
}

func NewBinaryExpr(loc filedb.CodeLoc, ty Type, op BinOp, l, r Expr) *BinaryExpr {
	return &BinaryExpr{exprBase: exprBase{Loc: loc, Ty: ty}, Op: op, Left: l, Right: r}
}

// ExtendExpr sign- or zero-extends X from FromBits to the width of Ty
// (which is ToBits wide).
type ExtendExpr struct {
	exprBase
	Signed   bool
	FromBits int
	X        Expr
}

func NewExtendExpr(loc filedb.CodeLoc, ty Type, signed bool, fromBits int, x Expr) *ExtendExpr {
	return &ExtendExpr{exprBase: exprBase{Loc: loc, Ty: ty}, Signed: signed, FromBits: fromBits, X: x}
}

// AssignTarget is the lvalue an AssignExpr writes to: either a local
// variable, or the address yielded by evaluating Ptr.
type AssignTarget struct {
	Local bool
	Var   int
	Ptr   Expr
}

// AssignExpr evaluates Value then writes it to Target, leaving Value as the
// expression's own result (so `x = y = 1` works).
type AssignExpr struct {
	exprBase
	Target AssignTarget
	Value  Expr
}

func NewAssignExpr(loc filedb.CodeLoc, target AssignTarget, value Expr) *AssignExpr {
	return &AssignExpr{exprBase: exprBase{Loc: loc, Ty: value.Type()}, Target: target, Value: value}
}

// MemberExpr accesses a struct field, either by value (ThroughPtr == false,
// Base evaluates to the aggregate itself) or through a pointer
// (ThroughPtr == true, Base evaluates to a pointer to the aggregate).
type MemberExpr struct {
	exprBase
	Base       Expr
	Field      string
	FieldOff   uint32
	BaseSize   uint32
	ThroughPtr bool
}

func NewMemberExpr(loc filedb.CodeLoc, ty Type, base Expr, field string, fieldOff, baseSize uint32, throughPtr bool) *MemberExpr {
	return &MemberExpr{
		exprBase:   exprBase{Loc: loc, Ty: ty},
		Base:       base,
		Field:      field,
		FieldOff:   fieldOff,
		BaseSize:   baseSize,
		ThroughPtr: throughPtr,
	}
}

// DerefExpr dereferences Ptr, yielding the size(Ty) bytes it points to.
type DerefExpr struct {
	exprBase
	Ptr Expr
}

func NewDerefExpr(loc filedb.CodeLoc, ty Type, ptr Expr) *DerefExpr {
	return &DerefExpr{exprBase: exprBase{Loc: loc, Ty: ty}, Ptr: ptr}
}

// AddrExpr yields the address of Lvalue, which must be a LocalIdent or a
// DerefExpr (per spec.md's Address-of lowering: &*p simplifies to p).
type AddrExpr struct {
	exprBase
	Lvalue Expr
}

func NewAddrExpr(loc filedb.CodeLoc, ty Type, lvalue Expr) *AddrExpr {
	return &AddrExpr{exprBase: exprBase{Loc: loc, Ty: ty}, Lvalue: lvalue}
}

// CallExpr calls Symbol with Args, in declaration order.
type CallExpr struct {
	exprBase
	Symbol string
	Args   []Expr
}

func NewCallExpr(loc filedb.CodeLoc, ty Type, symbol string, args []Expr) *CallExpr {
	return &CallExpr{exprBase: exprBase{Loc: loc, Ty: ty}, Symbol: symbol, Args: args}
}
