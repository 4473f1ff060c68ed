package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholaslyang/tci/lang/compiler"
)

func TestExtendSignedPreservesNegative(t *testing.T) {
	m := NewMemory()
	pushBE(m, uint64(uint8(0xFE)), 1) // -2 as an i8
	require.NoError(t, extend(m, compiler.SExtend8To32))
	v, err := popBE(m, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), int32(uint32(v)))
}

func TestExtendUnsignedZeroFills(t *testing.T) {
	m := NewMemory()
	pushBE(m, uint64(uint8(0xFE)), 1)
	require.NoError(t, extend(m, compiler.ZExtend8To32))
	v, err := popBE(m, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFE), uint32(v))
}

func TestArith32DivisionByZero(t *testing.T) {
	m := NewMemory()
	pushBE(m, uint64(uint32(10)), 4)
	pushBE(m, uint64(uint32(0)), 4)
	assert.Error(t, arith32(m, compiler.DivI32))
}

func TestArith64Signed(t *testing.T) {
	m := NewMemory()
	pushBE(m, uint64(int64(10)), 8)
	pushBE(m, uint64(int64(-3)), 8)
	require.NoError(t, arith64(m, compiler.SubI64))
	v, err := popBE(m, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(13), int64(v))
}

func TestCompare32(t *testing.T) {
	m := NewMemory()
	pushBE(m, uint64(uint32(2)), 4)
	pushBE(m, uint64(uint32(3)), 4)
	require.NoError(t, compare32(m, compiler.CompLtI32))
	v, err := popBE(m, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}
