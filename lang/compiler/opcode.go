// Package compiler implements the assembler: it translates a typed-function
// tree (package typed) into a Program, a linear stream of tagged opcodes
// executed by package machine.
package compiler

import (
	"fmt"

	"github.com/nicholaslyang/tci/internal/filedb"
)

// Code identifies an opcode variant. The operand payload for each Code
// lives in the corresponding fields of Op; which fields are meaningful
// depends on Code, the same closed-tagged-union shape as the rest of this
// system's polymorphism (typed.Expr, typed.Stmt).
type Code uint8

const (
	Nop Code = iota

	// function
	Func
	Call
	LibCall
	Ret
	Ecall

	// stack vars
	StackAlloc
	StackAllocDyn
	StackDealloc
	StackAddToTemp

	// operand stack
	Pop
	PopKeep
	PushUndef
	PushDup
	Swap
	PopIntoTopVar

	// immediates
	MakeTempI8
	MakeTempI32
	MakeTempI64
	MakeTempU64
	MakeTempF64
	MakeTempBinaryPtr
	MakeTempLocalStackPtr

	// locals
	GetLocal
	SetLocal

	// pointer
	Get
	Set

	// extensions
	SExtend8To16
	SExtend8To32
	SExtend8To64
	SExtend16To32
	SExtend16To64
	SExtend32To64
	ZExtend8To16
	ZExtend8To32
	ZExtend8To64
	ZExtend16To32
	ZExtend16To64
	ZExtend32To64

	// arithmetic
	AddU32
	AddU64
	SubI32
	SubI64
	SubU64
	MulI32
	MulI64
	MulU64
	DivI32
	DivI64
	DivU64
	ModI64

	// comparison
	CompLtI32
	CompLtU64
	CompLeqI32
	CompLeqU64
	CompEq32
	CompEq64
	CompNeq32

	// control
	Jump
	JumpIfZero8
	JumpIfZero16
	JumpIfZero32
	JumpIfZero64
	JumpIfNotZero8
	JumpIfNotZero16
	JumpIfNotZero32
	JumpIfNotZero64
)

var codeNames = map[Code]string{
	Nop:                   "nop",
	Func:                  "func",
	Call:                  "call",
	LibCall:               "libcall",
	Ret:                   "ret",
	Ecall:                 "ecall",
	StackAlloc:            "stack_alloc",
	StackAllocDyn:         "stack_alloc_dyn",
	StackDealloc:          "stack_dealloc",
	StackAddToTemp:        "stack_add_to_temp",
	Pop:                   "pop",
	PopKeep:               "pop_keep",
	PushUndef:             "push_undef",
	PushDup:               "push_dup",
	Swap:                  "swap",
	PopIntoTopVar:         "pop_into_top_var",
	MakeTempI8:            "make_temp_i8",
	MakeTempI32:           "make_temp_i32",
	MakeTempI64:           "make_temp_i64",
	MakeTempU64:           "make_temp_u64",
	MakeTempF64:           "make_temp_f64",
	MakeTempBinaryPtr:     "make_temp_binary_ptr",
	MakeTempLocalStackPtr: "make_temp_local_stack_ptr",
	GetLocal:              "get_local",
	SetLocal:              "set_local",
	Get:                   "get",
	Set:                   "set",
	SExtend8To16:          "sext_8_16",
	SExtend8To32:          "sext_8_32",
	SExtend8To64:          "sext_8_64",
	SExtend16To32:         "sext_16_32",
	SExtend16To64:         "sext_16_64",
	SExtend32To64:         "sext_32_64",
	ZExtend8To16:          "zext_8_16",
	ZExtend8To32:          "zext_8_32",
	ZExtend8To64:          "zext_8_64",
	ZExtend16To32:         "zext_16_32",
	ZExtend16To64:         "zext_16_64",
	ZExtend32To64:         "zext_32_64",
	AddU32:                "add_u32",
	AddU64:                "add_u64",
	SubI32:                "sub_i32",
	SubI64:                "sub_i64",
	SubU64:                "sub_u64",
	MulI32:                "mul_i32",
	MulI64:                "mul_i64",
	MulU64:                "mul_u64",
	DivI32:                "div_i32",
	DivI64:                "div_i64",
	DivU64:                "div_u64",
	ModI64:                "mod_i64",
	CompLtI32:             "lt_i32",
	CompLtU64:             "lt_u64",
	CompLeqI32:            "leq_i32",
	CompLeqU64:            "leq_u64",
	CompEq32:              "eq_32",
	CompEq64:              "eq_64",
	CompNeq32:             "neq_32",
	Jump:                  "jump",
	JumpIfZero8:           "jz_8",
	JumpIfZero16:          "jz_16",
	JumpIfZero32:          "jz_32",
	JumpIfZero64:          "jz_64",
	JumpIfNotZero8:        "jnz_8",
	JumpIfNotZero16:       "jnz_16",
	JumpIfNotZero32:       "jnz_32",
	JumpIfNotZero64:       "jnz_64",
}

var nameToCode map[string]Code

func init() {
	nameToCode = make(map[string]Code, len(codeNames))
	for c, n := range codeNames {
		nameToCode[n] = c
	}
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", c)
}

// IsJump reports whether c's Target field is a jump destination that must
// be resolved from a textual label, rather than an already-numeric operand.
func (c Code) IsJump() bool {
	switch c {
	case Jump, JumpIfZero8, JumpIfZero16, JumpIfZero32, JumpIfZero64,
		JumpIfNotZero8, JumpIfNotZero16, JumpIfNotZero32, JumpIfNotZero64:
		return true
	default:
		return false
	}
}

// Op is one opcode instance. Which fields are meaningful is determined by
// Code; unused fields are simply zero. This mirrors spec.md's description
// of a tagged opcode as "an (opcode, code-location) pair... each variant
// carries its own operand payload."
type Op struct {
	Code Code

	Sym string // Func / Call / LibCall symbol name

	Bytes  uint32 // Pop/PushUndef/PushDup/StackAlloc bytes
	Keep   uint32 // PopKeep
	Drop   uint32 // PopKeep
	Top    uint32 // Swap
	Bottom uint32 // Swap
	Offset uint32 // PopIntoTopVar/GetLocal/SetLocal/Get/Set
	Var    int32  // GetLocal/SetLocal/MakeTempLocalStackPtr var index (signed)
	PtrVar int32  // MakeTempBinaryPtr var index

	I8  int8
	I32 int32
	I64 int64
	U64 uint64
	F64 float64

	EcallCode uint32
	Target    uint32 // resolved jump/call pc (after linking / label resolution)

	// Func header only: number of declared parameters and whether a varargs
	// count slot follows them, so the interpreter can compute the base of
	// the parameter region without re-deriving it from the typed-function
	// tree at run time.
	NumParams int32
	Varargs   bool
}

// TaggedOpcode pairs an Op with the source location responsible for it.
type TaggedOpcode struct {
	Op  Op
	Loc filedb.CodeLoc
}
