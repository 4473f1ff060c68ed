package machine

import (
	"encoding/binary"
)

const (
	EcallExit = 0
	EcallArgc = 1
	EcallArgv = 2
)

// ecall dispatches the numeric system-call surface, which bypasses the
// library-function table entirely.
func (it *Interpreter) ecall(code uint32) error {
	m := it.Mem
	switch code {
	case EcallExit:
		v, err := popBE(m, 4)
		if err != nil {
			return err
		}
		return exitSignal{code: int32(uint32(v))}

	case EcallArgc:
		pushBE(m, uint64(len(it.Argv)), 4)
		return nil

	case EcallArgv:
		idx, err := popBE(m, 4)
		if err != nil {
			return err
		}
		if idx >= uint64(len(it.Argv)) {
			return errInvalidArgIndex("ARGV index out of range of argv")
		}
		s := it.Argv[idx]
		id := m.Heap.Alloc(uint32(len(s)+1), "argv")
		_ = m.Heap.Write(id, 0, append([]byte(s), 0))
		pushBE(m, uint64(MakeVarPointer(SegHeap, id, 0)), 8)
		return nil

	default:
		return errInvalidEcall("unknown ecall code")
	}
}

// registerDefaultLibFuncs binds the standard library-function symbol set.
// printf and exit are always registered; malloc/realloc/memcpy are the
// "optionally registered" allocator family noted in the library-function
// symbol set, and are also registered here by default.
func (it *Interpreter) registerDefaultLibFuncs() {
	it.RegisterLibFunc("printf", libPrintf)
	it.RegisterLibFunc("exit", libExit)
	it.RegisterLibFunc("malloc", libMalloc)
	it.RegisterLibFunc("realloc", libRealloc)
	it.RegisterLibFunc("memcpy", libMemcpy)
}

// libExit implements exit(code): it never returns to its caller. The
// return slot is void, so NthFromTop(0) is the single int parameter.
func libExit(it *Interpreter) error {
	codeID, ok := it.Mem.Stack.NthFromTop(0)
	if !ok {
		return errStackUnderflow("exit: missing code argument")
	}
	data, err := it.Mem.Stack.Read(codeID, 0, 4)
	if err != nil {
		return err
	}
	return exitSignal{code: int32(binary.BigEndian.Uint32(data))}
}

// libMalloc implements malloc(size) -> ptr. Stack layout from top: size
// param, then the return slot.
func libMalloc(it *Interpreter) error {
	stack := it.Mem.Stack
	sizeID, ok := stack.NthFromTop(0)
	if !ok {
		return errStackUnderflow("malloc: missing size argument")
	}
	retID, ok := stack.NthFromTop(1)
	if !ok {
		return errStackUnderflow("malloc: missing return slot")
	}
	szBytes, err := stack.Read(sizeID, 0, 8)
	if err != nil {
		return err
	}
	size := binary.BigEndian.Uint64(szBytes)

	newID := it.Mem.Heap.Alloc(uint32(size), "malloc")
	ptr := MakeVarPointer(SegHeap, newID, 0)
	return writePointerValue(stack, retID, ptr)
}

// libRealloc implements realloc(ptr, size) -> ptr. Stack layout from top:
// size param, ptr param, then the return slot.
func libRealloc(it *Interpreter) error {
	stack := it.Mem.Stack
	sizeID, ok := stack.NthFromTop(0)
	if !ok {
		return errStackUnderflow("realloc: missing size argument")
	}
	ptrID, ok := stack.NthFromTop(1)
	if !ok {
		return errStackUnderflow("realloc: missing ptr argument")
	}
	retID, ok := stack.NthFromTop(2)
	if !ok {
		return errStackUnderflow("realloc: missing return slot")
	}

	szBytes, err := stack.Read(sizeID, 0, 8)
	if err != nil {
		return err
	}
	size := binary.BigEndian.Uint64(szBytes)

	old, err := readPointerValue(stack, ptrID)
	if err != nil {
		return err
	}
	if old.Segment() != SegHeap || old.Offset() != 0 {
		return errInvalidPointer("realloc of a pointer not previously returned by malloc/realloc")
	}
	oldLen, ok := it.Mem.Heap.Length(old.VarID())
	if !ok {
		return errInvalidPointer("realloc of a pointer to a freed or unknown heap variable")
	}

	newID := it.Mem.Heap.Alloc(uint32(size), "realloc")
	copyLen := oldLen
	if size < uint64(copyLen) {
		copyLen = uint32(size)
	}
	if copyLen > 0 {
		data, err := it.Mem.Heap.Read(old.VarID(), 0, copyLen)
		if err != nil {
			return err
		}
		if err := it.Mem.Heap.Write(newID, 0, data); err != nil {
			return err
		}
	}

	newPtr := MakeVarPointer(SegHeap, newID, 0)
	return writePointerValue(stack, retID, newPtr)
}

// libMemcpy implements memcpy(dest, src, n) -> dest. Stack layout from
// top: n param, src param, dest param, then the return slot.
func libMemcpy(it *Interpreter) error {
	stack := it.Mem.Stack
	nID, ok := stack.NthFromTop(0)
	if !ok {
		return errStackUnderflow("memcpy: missing n argument")
	}
	srcID, ok := stack.NthFromTop(1)
	if !ok {
		return errStackUnderflow("memcpy: missing src argument")
	}
	destID, ok := stack.NthFromTop(2)
	if !ok {
		return errStackUnderflow("memcpy: missing dest argument")
	}
	retID, ok := stack.NthFromTop(3)
	if !ok {
		return errStackUnderflow("memcpy: missing return slot")
	}

	nBytes, err := stack.Read(nID, 0, 8)
	if err != nil {
		return err
	}
	n := binary.BigEndian.Uint64(nBytes)

	dest, err := readPointerValue(stack, destID)
	if err != nil {
		return err
	}
	src, err := readPointerValue(stack, srcID)
	if err != nil {
		return err
	}

	// ReadPointer returns a view into the source pool, and WritePointer
	// copies it with Go's copy, which handles overlapping ranges, so
	// overlapping regions (including dest == src) behave like memmove.
	data, err := it.Mem.ReadPointer(src, uint32(n))
	if err != nil {
		return err
	}
	if err := it.Mem.WritePointer(dest, data); err != nil {
		return err
	}

	return writePointerValue(stack, retID, dest)
}

func readPointerValue(stack *VarBuffer, id uint32) (VarPointer, error) {
	data, err := stack.Read(id, 0, 8)
	if err != nil {
		return 0, err
	}
	return VarPointer(binary.BigEndian.Uint64(data)), nil
}

func writePointerValue(stack *VarBuffer, id uint32, ptr VarPointer) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ptr))
	return stack.Write(id, 0, buf[:])
}
