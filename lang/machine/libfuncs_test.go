package machine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestInterp builds an Interpreter with no Program, enough to drive a
// single library-function call directly against a fresh Memory.
func newTestInterp() *Interpreter {
	return &Interpreter{Mem: NewMemory(), out: &bytes.Buffer{}}
}

func pushU64(stack *VarBuffer, v uint64) uint32 {
	id := stack.Alloc(8, "arg")
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_ = stack.Write(id, 0, buf[:])
	return id
}

func readU64(t *testing.T, stack *VarBuffer, id uint32) uint64 {
	t.Helper()
	data, err := stack.Read(id, 0, 8)
	require.NoError(t, err)
	return binary.BigEndian.Uint64(data)
}

// TestMemcpySameDestSrcIsNoop covers spec.md §8's memcpy(dest, dest, n)
// invariant: copying a region onto itself must leave it unchanged (libMemcpy
// writes with Go's copy, which handles overlapping source and destination).
func TestMemcpySameDestSrcIsNoop(t *testing.T) {
	it := newTestInterp()
	stack := it.Mem.Stack

	id := it.Mem.Heap.Alloc(4, "buf")
	require.NoError(t, it.Mem.Heap.Write(id, 0, []byte{1, 2, 3, 4}))
	ptr := MakeVarPointer(SegHeap, id, 0)

	// Stack layout from top: n, src, dest, retslot (see libMemcpy).
	retID := pushU64(stack, 0)
	pushU64(stack, uint64(ptr)) // dest
	pushU64(stack, uint64(ptr)) // src
	pushU64(stack, 4)           // n

	require.NoError(t, libMemcpy(it))

	data, err := it.Mem.Heap.Read(id, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data, "memcpy(dest, dest, n) must be a no-op")
	assert.Equal(t, uint64(ptr), readU64(t, stack, retID), "memcpy must return dest")
}

// TestReallocShrinkPreservesPrefix covers spec.md §8's realloc(p, n)
// invariant for old size >= n: the first n bytes must survive at the new
// pointer.
func TestReallocShrinkPreservesPrefix(t *testing.T) {
	it := newTestInterp()
	stack := it.Mem.Stack

	mallocRet := pushU64(stack, 0)
	pushU64(stack, 8) // size
	require.NoError(t, libMalloc(it))
	ptr := VarPointer(readU64(t, stack, mallocRet))
	require.NoError(t, stack.DeallocTop())
	require.NoError(t, stack.DeallocTop())

	require.NoError(t, it.Mem.WritePointer(ptr, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	// Stack layout from top: size, ptr, retslot (see libRealloc).
	reallocRet := pushU64(stack, 0)
	pushU64(stack, uint64(ptr))
	pushU64(stack, 4) // shrink to 4 bytes

	require.NoError(t, libRealloc(it))
	newPtr := VarPointer(readU64(t, stack, reallocRet))

	got, err := it.Mem.ReadPointer(newPtr, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got, "realloc to a smaller size must preserve the surviving prefix")
}
