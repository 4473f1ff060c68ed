package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarPointerPacking(t *testing.T) {
	p := MakeVarPointer(SegHeap, 12345, 678)
	assert.Equal(t, SegHeap, p.Segment())
	assert.Equal(t, uint32(12345), p.VarID())
	assert.Equal(t, uint32(678), p.Offset())

	q := p.AddOffset(10)
	assert.Equal(t, uint32(688), q.Offset())
	assert.Equal(t, p.VarID(), q.VarID())
}

func TestVarPointerOffsetWraps(t *testing.T) {
	p := MakeVarPointer(SegStack, 1, 0)
	q := p.AddOffset(-1)
	assert.Equal(t, uint32(0xFFFFFFFF), q.Offset())
}

func TestVarBufferIDsNeverReused(t *testing.T) {
	b := newVarBuffer()
	id1 := b.Alloc(4, "a")
	require.NoError(t, b.DeallocTop())
	id2 := b.Alloc(4, "b")

	assert.NotEqual(t, id1, id2, "a deallocated variable's id must never be handed to a later variable")

	_, err := b.Read(id1, 0, 4)
	assert.Error(t, err, "reading a stale id must fail rather than alias the new variable")

	data, err := b.Read(id2, 0, 4)
	require.NoError(t, err)
	assert.Len(t, data, 4)
}

func TestVarBufferReadWriteBounds(t *testing.T) {
	b := newVarBuffer()
	id := b.Alloc(4, "x")

	require.NoError(t, b.Write(id, 0, []byte{1, 2, 3, 4}))
	data, err := b.Read(id, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	_, err = b.Read(id, 2, 4)
	assert.Error(t, err, "reads overrunning the variable must segfault")

	err = b.Write(id, 0, []byte{1, 2, 3, 4, 5})
	assert.Error(t, err, "writes overrunning the variable must segfault")
}

func TestVarBufferDeallocLIFO(t *testing.T) {
	b := newVarBuffer()
	a := b.Alloc(4, "a")
	_ = b.Alloc(8, "b")

	require.NoError(t, b.DeallocTop())
	top, ok := b.TopID()
	require.True(t, ok)
	assert.Equal(t, a, top)

	require.NoError(t, b.DeallocTop())
	assert.Error(t, b.DeallocTop(), "deallocating an empty buffer must fail")
}

func TestVarBufferNthFromTop(t *testing.T) {
	b := newVarBuffer()
	a := b.Alloc(4, "a")
	c := b.Alloc(4, "b")
	d := b.Alloc(4, "c")

	top, ok := b.NthFromTop(0)
	require.True(t, ok)
	assert.Equal(t, d, top)

	mid, ok := b.NthFromTop(1)
	require.True(t, ok)
	assert.Equal(t, c, mid)

	bottom, ok := b.NthFromTop(2)
	require.True(t, ok)
	assert.Equal(t, a, bottom)

	_, ok = b.NthFromTop(3)
	assert.False(t, ok)
}

func TestMemoryLocalPosVarargsShift(t *testing.T) {
	m := NewMemory()
	m.FP = 5
	m.varargsSlot = false
	assert.Equal(t, 3, m.localPos(-2))
	assert.Equal(t, 5, m.localPos(0))

	m.varargsSlot = true
	assert.Equal(t, 2, m.localPos(-2), "negative indices shift left by one when a varargs count slot was pushed")
	assert.Equal(t, 5, m.localPos(0), "non-negative (local) indices are unaffected by the varargs slot")
}
