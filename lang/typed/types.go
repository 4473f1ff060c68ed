// Package typed defines the typed-function tree: the external interface the
// assembler consumes. Producing one (lexing, parsing, type checking) is out
// of scope for this module; callers build a typed-function tree directly as
// Go values, or through a front end of their own.
package typed

// Kind enumerates the small set of C types this system's type checker is
// assumed to produce. There is no floating-point kind: spec.md's non-goals
// exclude floating-point arithmetic from the core.
type Kind uint8

const (
	KindVoid Kind = iota
	KindI8
	KindI32
	KindI64
	KindU64
	KindPtr
	KindStruct
)

// Type is a resolved C type: a Kind plus, for KindPtr, the pointee type, and
// for KindStruct, the ordered field list.
type Type struct {
	Kind   Kind
	Elem   *Type   // KindPtr only: pointee type
	Fields []Field // KindStruct only: ordered members
}

// Field is one member of a struct type, along with its byte offset from the
// start of the struct (computed by the type checker, not recomputed here).
type Field struct {
	Name   string
	Type   Type
	Offset uint32
}

// Size returns the size in bytes of a value of this type.
func (t Type) Size() uint32 {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindI8:
		return 1
	case KindI32:
		return 4
	case KindI64, KindU64, KindPtr:
		return 8
	case KindStruct:
		var sz uint32
		for _, f := range t.Fields {
			end := f.Offset + f.Type.Size()
			if end > sz {
				sz = end
			}
		}
		return sz
	default:
		return 0
	}
}

// Field looks up a member by name, returning (field, true) or (zero, false).
func (t Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var (
	Void = Type{Kind: KindVoid}
	I8   = Type{Kind: KindI8}
	I32  = Type{Kind: KindI32}
	I64  = Type{Kind: KindI64}
	U64  = Type{Kind: KindU64}
)

// PtrTo builds a pointer-to-elem type.
func PtrTo(elem Type) Type {
	e := elem
	return Type{Kind: KindPtr, Elem: &e}
}

// Struct builds a struct type from a field list whose offsets are already
// resolved by the caller.
func Struct(fields ...Field) Type {
	return Type{Kind: KindStruct, Fields: fields}
}
