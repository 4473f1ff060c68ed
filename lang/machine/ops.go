package machine

import (
	"golang.org/x/exp/constraints"

	"github.com/nicholaslyang/tci/lang/compiler"
)

// signExtend widens a two's-complement value read from a fromBits-wide
// field, preserving sign, into the wider return type T.
func signExtend[T constraints.Signed](v uint64, fromBits int) T {
	shift := 64 - fromBits
	return T(int64(v<<shift) >> shift)
}

// zeroExtend widens a value read from a fromBits-wide field with no sign
// propagation.
func zeroExtend[T constraints.Unsigned](v uint64, fromBits int) T {
	mask := uint64(1)<<uint(fromBits) - 1
	return T(v & mask)
}

// extend implements the twelve SExtend*/ZExtend* opcodes. Each reads the
// source-width value in big-endian uniformly, including the 8-bit source
// variants: this resolves the inconsistency design notes flagged, where
// some widths would otherwise read raw bytes while others read via
// from_be.
func extend(m *Memory, code compiler.Code) error {
	from, to, signed := extendWidths(code)
	raw, err := popBE(m, from/8)
	if err != nil {
		return err
	}
	var out uint64
	if signed {
		out = uint64(signExtend[int64](raw, from))
	} else {
		out = zeroExtend[uint64](raw, from)
	}
	pushBE(m, out, to/8)
	return nil
}

func extendWidths(code compiler.Code) (from, to int, signed bool) {
	switch code {
	case compiler.SExtend8To16:
		return 8, 16, true
	case compiler.SExtend8To32:
		return 8, 32, true
	case compiler.SExtend8To64:
		return 8, 64, true
	case compiler.SExtend16To32:
		return 16, 32, true
	case compiler.SExtend16To64:
		return 16, 64, true
	case compiler.SExtend32To64:
		return 32, 64, true
	case compiler.ZExtend8To16:
		return 8, 16, false
	case compiler.ZExtend8To32:
		return 8, 32, false
	case compiler.ZExtend8To64:
		return 8, 64, false
	case compiler.ZExtend16To32:
		return 16, 32, false
	case compiler.ZExtend16To64:
		return 16, 64, false
	default: // ZExtend32To64
		return 32, 64, false
	}
}

func arith32(m *Memory, code compiler.Code) error {
	rhs, err := popBE(m, 4)
	if err != nil {
		return err
	}
	lhs, err := popBE(m, 4)
	if err != nil {
		return err
	}
	a, b := int32(uint32(lhs)), int32(uint32(rhs))
	var res uint32
	switch code {
	case compiler.AddU32:
		res = uint32(a) + uint32(b)
	case compiler.SubI32:
		res = uint32(a - b)
	case compiler.MulI32:
		res = uint32(a * b)
	case compiler.DivI32:
		if b == 0 {
			return errSegfault("division by zero")
		}
		res = uint32(a / b)
	}
	pushBE(m, uint64(res), 4)
	return nil
}

func arith64(m *Memory, code compiler.Code) error {
	rhs, err := popBE(m, 8)
	if err != nil {
		return err
	}
	lhs, err := popBE(m, 8)
	if err != nil {
		return err
	}
	var res uint64
	switch code {
	case compiler.AddU64:
		res = lhs + rhs
	case compiler.SubI64:
		res = uint64(int64(lhs) - int64(rhs))
	case compiler.SubU64:
		res = lhs - rhs
	case compiler.MulI64:
		res = uint64(int64(lhs) * int64(rhs))
	case compiler.MulU64:
		res = lhs * rhs
	case compiler.DivI64:
		if rhs == 0 {
			return errSegfault("division by zero")
		}
		res = uint64(int64(lhs) / int64(rhs))
	case compiler.DivU64:
		if rhs == 0 {
			return errSegfault("division by zero")
		}
		res = lhs / rhs
	case compiler.ModI64:
		if rhs == 0 {
			return errSegfault("division by zero")
		}
		res = uint64(int64(lhs) % int64(rhs))
	}
	pushBE(m, res, 8)
	return nil
}

func compare32(m *Memory, code compiler.Code) error {
	rhs, err := popBE(m, 4)
	if err != nil {
		return err
	}
	lhs, err := popBE(m, 4)
	if err != nil {
		return err
	}
	a, b := int32(uint32(lhs)), int32(uint32(rhs))
	var res bool
	switch code {
	case compiler.CompLtI32:
		res = a < b
	case compiler.CompLeqI32:
		res = a <= b
	case compiler.CompEq32:
		res = a == b
	case compiler.CompNeq32:
		res = a != b
	}
	pushBool(m, res)
	return nil
}

func compare64(m *Memory, code compiler.Code) error {
	rhs, err := popBE(m, 8)
	if err != nil {
		return err
	}
	lhs, err := popBE(m, 8)
	if err != nil {
		return err
	}
	var res bool
	switch code {
	case compiler.CompLtU64:
		res = lhs < rhs
	case compiler.CompLeqU64:
		res = lhs <= rhs
	case compiler.CompEq64:
		res = lhs == rhs
	}
	pushBool(m, res)
	return nil
}

func pushBool(m *Memory, v bool) {
	if v {
		m.PushBytes([]byte{1})
		return
	}
	m.PushBytes([]byte{0})
}
