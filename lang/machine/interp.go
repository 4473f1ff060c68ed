package machine

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"

	"github.com/dolthub/swiss"
	"github.com/nicholaslyang/tci/lang/compiler"
)

// LibFunc is a host-implemented routine invoked via LibCall; it reads its
// arguments directly from the guest stack by offset (see VarBuffer.NthFromTop)
// and is solely responsible for writing its own return slot, if any.
type LibFunc func(it *Interpreter) error

// exitSignal unwinds run() when the guest calls exit() or Ecall(EXIT); it
// is never surfaced to callers as an *IError.
type exitSignal struct{ code int32 }

func (exitSignal) Error() string { return "exit" }

// Interpreter executes a *compiler.Program's opcode stream over a Memory.
type Interpreter struct {
	Prog *compiler.Program
	Mem  *Memory
	Argv []string

	libFuncs *swiss.Map[string, LibFunc]
	out      io.Writer
	log      *slog.Logger
}

// New constructs an Interpreter ready to run prog from its main entry
// point, with argv exposed via Ecall ARGC/ARGV.
func New(prog *compiler.Program, argv []string) *Interpreter {
	it := &Interpreter{
		Prog:     prog,
		Mem:      NewMemory(),
		Argv:     argv,
		libFuncs: swiss.NewMap[string, LibFunc](8),
		log:      slog.Default(),
	}
	for _, d := range prog.Data {
		it.Mem.Binary.Alloc(uint32(len(d.Data)), d.Name)
		id, _ := it.Mem.Binary.TopID()
		_ = it.Mem.Binary.Write(id, 0, d.Data)
	}

	// main is never reached through Call (nothing calls it), so there is no
	// caller to have pushed its return slot. Synthesize the same frame setup
	// Call would have performed: a single 4-byte return-value slot, fp past
	// it, pc past the header. Ret's empty-callstack case then reads this
	// slot as the process exit code instead of assuming 0.
	it.Mem.Stack.Alloc(4, "main_retslot")
	it.Mem.FP = uint16(it.Mem.Stack.Count())
	it.Mem.PC = prog.MainIdx + 1

	it.registerDefaultLibFuncs()
	return it
}

// RegisterLibFunc (re)binds a symbol to a host function, overriding or
// extending the default set (printf, exit, malloc, realloc, memcpy).
func (it *Interpreter) RegisterLibFunc(symbol string, fn LibFunc) {
	it.libFuncs.Put(symbol, fn)
}

// Diagnostic returns the interpreter's current execution position, for
// debugging or error reporting: callstack depth, frame pointer, program
// counter, and the code location of the instruction at pc.
func (it *Interpreter) Diagnostic() (depth int, fp uint16, pc uint32, loc CodeLoc) {
	loc = filedbZero
	if int(it.Mem.PC) < len(it.Prog.Ops) {
		loc = it.Prog.Ops[it.Mem.PC].Loc
	}
	return len(it.Mem.Callstack), it.Mem.FP, it.Mem.PC, loc
}

// RuntimeError wraps an *IError with the call-stack trace active when it
// was raised: the faulting instruction's location first, then the call-site
// location of each enclosing frame, innermost first.
type RuntimeError struct {
	Err   *IError
	Trace []CodeLoc
}

func (e *RuntimeError) Error() string { return e.Err.Error() }
func (e *RuntimeError) Unwrap() error { return e.Err }

var filedbZero = CodeLoc{File: -1}

// Run executes the program until it exits or faults, writing any printf
// output to w. It returns the guest's exit code, or an error.
func (it *Interpreter) Run(w io.Writer) (int, error) {
	it.out = w
	for {
		code, done, err := it.stepOnce()
		if err != nil {
			return 0, err
		}
		if done {
			return code, nil
		}
	}
}

// RunOpCount executes at most n opcodes, or until the program exits or
// faults, whichever comes first. done reports whether the program actually
// exited (as opposed to simply running out of budget).
func (it *Interpreter) RunOpCount(w io.Writer, n int) (code int, done bool, err error) {
	it.out = w
	for i := 0; i < n; i++ {
		c, d, e := it.stepOnce()
		if e != nil {
			return 0, false, e
		}
		if d {
			return c, true, nil
		}
	}
	return 0, false, nil
}

// RunCountOrUntil executes at most n opcodes, stopping early (before
// reaching n) if pc reaches atPC with the callstack at exactly
// atStackDepth, or if the program exits or faults.
func (it *Interpreter) RunCountOrUntil(w io.Writer, n int, atPC uint32, atStackDepth int) (code int, done bool, err error) {
	it.out = w
	for i := 0; i < n; i++ {
		if it.Mem.PC == atPC && len(it.Mem.Callstack) == atStackDepth {
			return 0, false, nil
		}
		c, d, e := it.stepOnce()
		if e != nil {
			return 0, false, e
		}
		if d {
			return c, true, nil
		}
	}
	return 0, false, nil
}

// stepOnce executes a single opcode. done is true when the guest program
// has exited; code is then its exit code.
func (it *Interpreter) stepOnce() (code int, done bool, err error) {
	pc := it.Mem.PC
	if int(pc) >= len(it.Prog.Ops) {
		return 0, false, it.fault(errSegfault("program counter ran past the end of the opcode stream"))
	}
	top := it.Prog.Ops[pc]

	if sig, ok := func() (exitSignal, bool) {
		e := it.runOp(top.Op)
		if e == nil {
			return exitSignal{}, false
		}
		if es, ok := e.(exitSignal); ok {
			return es, true
		}
		err = it.wrapFault(e, top.Loc)
		return exitSignal{}, false
	}(); ok {
		return int(sig.code), true, nil
	}
	return 0, false, err
}

func (it *Interpreter) wrapFault(err error, loc CodeLoc) error {
	ie, ok := err.(*IError)
	if !ok {
		return err
	}
	trace := make([]CodeLoc, 0, len(it.Mem.Callstack)+1)
	trace = append(trace, loc)
	for i := len(it.Mem.Callstack) - 1; i >= 0; i-- {
		trace = append(trace, it.Mem.Callstack[i].CallLoc)
	}
	it.log.Warn("runtime fault", "short_name", ie.ShortName, "pc", it.Mem.PC, "fp", it.Mem.FP, "depth", len(it.Mem.Callstack))
	return &RuntimeError{Err: ie, Trace: trace}
}

func (it *Interpreter) fault(err error) error {
	return it.wrapFault(err, filedbZero)
}

// runOp executes one opcode and advances pc, unless the opcode sets pc
// itself (jumps, Call, Ret). It returns exitSignal (not wrapped as an
// error the caller surfaces) when the guest exits.
func (it *Interpreter) runOp(op compiler.Op) error {
	m := it.Mem
	advance := true
	defer func() {
		if advance {
			m.PC++
		}
	}()

	switch op.Code {
	case compiler.Nop, compiler.Func:
		// no-op; Func headers are not executed in normal flow, since New
		// starts pc past main's header and Call sets pc past the callee's.

	case compiler.Ret:
		for m.Stack.Count() > int(m.FP) {
			if err := m.Stack.DeallocTop(); err != nil {
				return err
			}
		}
		if len(m.Callstack) == 0 {
			var code int32
			if id, ok := m.Stack.TopID(); ok {
				if data, err := m.Stack.Read(id, 0, 4); err == nil {
					code = int32(binary.BigEndian.Uint32(data))
				}
			}
			return exitSignal{code: code}
		}
		fr := m.Callstack[len(m.Callstack)-1]
		m.Callstack = m.Callstack[:len(m.Callstack)-1]
		m.FP = fr.SavedFP
		m.varargsSlot = fr.SavedVarargsSlot
		m.PC = fr.SavedPC
		advance = false

	case compiler.Call:
		header := it.Prog.Ops[op.Target].Op
		m.Callstack = append(m.Callstack, Frame{
			SavedFP:          m.FP,
			SavedPC:          m.PC + 1,
			SavedVarargsSlot: m.varargsSlot,
			CallLoc:          it.Prog.Ops[m.PC].Loc,
		})
		m.FP = uint16(m.Stack.Count())
		m.varargsSlot = header.Varargs
		m.PC = op.Target + 1
		advance = false

	case compiler.LibCall:
		fn, ok := it.libFuncs.Get(op.Sym)
		if !ok {
			return errInvalidLibraryFunction("no library function bound to symbol " + op.Sym)
		}
		return fn(it)

	case compiler.Ecall:
		return it.ecall(op.EcallCode)

	case compiler.StackAlloc:
		m.Stack.Alloc(op.Bytes, op.Sym)

	case compiler.StackAllocDyn:
		n, err := popBE(m, 4)
		if err != nil {
			return err
		}
		m.Stack.Alloc(uint32(n), op.Sym)

	case compiler.StackDealloc:
		return m.Stack.DeallocTop()

	case compiler.StackAddToTemp:
		id, ok := m.Stack.TopID()
		if !ok {
			return errStackUnderflow("StackAddToTemp with no stack variable")
		}
		n, _ := m.Stack.Length(id)
		data, err := m.Stack.Read(id, 0, n)
		if err != nil {
			return err
		}
		if err := m.Stack.DeallocTop(); err != nil {
			return err
		}
		m.PushBytes(data)

	case compiler.Pop:
		_, err := m.PopBytes(op.Bytes)
		return err

	case compiler.PopKeep:
		top, err := m.PopBytes(op.Drop + op.Keep)
		if err != nil {
			return err
		}
		m.PushBytes(top[op.Drop:])

	case compiler.PushUndef:
		m.PushBytes(make([]byte, op.Bytes))

	case compiler.PushDup:
		top, err := m.PeekBytes(op.Bytes)
		if err != nil {
			return err
		}
		m.PushBytes(append([]byte(nil), top...))

	case compiler.Swap:
		both, err := m.PopBytes(op.Top + op.Bottom)
		if err != nil {
			return err
		}
		bottom := both[:op.Bottom]
		top := both[op.Bottom:]
		m.PushBytes(top)
		m.PushBytes(bottom)

	case compiler.PopIntoTopVar:
		data, err := m.PopBytes(op.Bytes)
		if err != nil {
			return err
		}
		id, ok := m.Stack.TopID()
		if !ok {
			return errStackUnderflow("PopIntoTopVar with no stack variable")
		}
		return m.Stack.Write(id, op.Offset, data)

	case compiler.MakeTempI8:
		m.PushBytes([]byte{byte(op.I8)})

	case compiler.MakeTempI32:
		pushBE(m, uint64(uint32(op.I32)), 4)

	case compiler.MakeTempI64:
		pushBE(m, uint64(op.I64), 8)

	case compiler.MakeTempU64:
		pushBE(m, op.U64, 8)

	case compiler.MakeTempF64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(op.F64))
		m.PushBytes(buf[:])

	case compiler.MakeTempBinaryPtr:
		ptr := MakeVarPointer(SegBinary, uint32(op.PtrVar), op.Offset)
		pushBE(m, uint64(ptr), 8)

	case compiler.MakeTempLocalStackPtr:
		id, err := m.localID(op.Var)
		if err != nil {
			return err
		}
		ptr := MakeVarPointer(SegStack, id, op.Offset)
		pushBE(m, uint64(ptr), 8)

	case compiler.GetLocal:
		id, err := m.localID(op.Var)
		if err != nil {
			return err
		}
		data, err := m.Stack.Read(id, op.Offset, op.Bytes)
		if err != nil {
			return err
		}
		m.PushBytes(data)

	case compiler.SetLocal:
		data, err := m.PopBytes(op.Bytes)
		if err != nil {
			return err
		}
		id, err := m.localID(op.Var)
		if err != nil {
			return err
		}
		return m.Stack.Write(id, op.Offset, data)

	case compiler.Get:
		ptrBits, err := popBE(m, 8)
		if err != nil {
			return err
		}
		ptr := VarPointer(ptrBits).AddOffset(int32(op.Offset))
		data, err := m.ReadPointer(ptr, op.Bytes)
		if err != nil {
			return err
		}
		m.PushBytes(data)

	case compiler.Set:
		data, err := m.PopBytes(op.Bytes)
		if err != nil {
			return err
		}
		ptrBits, err := popBE(m, 8)
		if err != nil {
			return err
		}
		ptr := VarPointer(ptrBits).AddOffset(int32(op.Offset))
		if err := m.WritePointer(ptr, data); err != nil {
			return err
		}
		m.PushBytes(data)

	case compiler.SExtend8To16, compiler.SExtend8To32, compiler.SExtend8To64,
		compiler.SExtend16To32, compiler.SExtend16To64, compiler.SExtend32To64,
		compiler.ZExtend8To16, compiler.ZExtend8To32, compiler.ZExtend8To64,
		compiler.ZExtend16To32, compiler.ZExtend16To64, compiler.ZExtend32To64:
		return extend(m, op.Code)

	case compiler.AddU32, compiler.SubI32, compiler.MulI32, compiler.DivI32:
		return arith32(m, op.Code)

	case compiler.AddU64, compiler.SubI64, compiler.SubU64, compiler.MulI64,
		compiler.MulU64, compiler.DivI64, compiler.DivU64, compiler.ModI64:
		return arith64(m, op.Code)

	case compiler.CompLtI32, compiler.CompLeqI32, compiler.CompEq32, compiler.CompNeq32:
		return compare32(m, op.Code)

	case compiler.CompLtU64, compiler.CompLeqU64, compiler.CompEq64:
		return compare64(m, op.Code)

	case compiler.Jump:
		m.PC = op.Target
		advance = false

	case compiler.JumpIfZero8, compiler.JumpIfZero16, compiler.JumpIfZero32, compiler.JumpIfZero64:
		width := jumpWidth(op.Code)
		v, err := popBE(m, width)
		if err != nil {
			return err
		}
		if v == 0 {
			m.PC = op.Target
			advance = false
		}

	case compiler.JumpIfNotZero8, compiler.JumpIfNotZero16, compiler.JumpIfNotZero32, compiler.JumpIfNotZero64:
		width := notZeroWidth(op.Code)
		v, err := popBE(m, width)
		if err != nil {
			return err
		}
		if v != 0 {
			m.PC = op.Target
			advance = false
		}

	default:
		return errInvalidFormatString("unimplemented opcode " + op.Code.String())
	}
	return nil
}

func jumpWidth(code compiler.Code) int {
	switch code {
	case compiler.JumpIfZero8:
		return 1
	case compiler.JumpIfZero16:
		return 2
	case compiler.JumpIfZero32:
		return 4
	default:
		return 8
	}
}

func notZeroWidth(code compiler.Code) int {
	switch code {
	case compiler.JumpIfNotZero8:
		return 1
	case compiler.JumpIfNotZero16:
		return 2
	case compiler.JumpIfNotZero32:
		return 4
	default:
		return 8
	}
}

func pushBE(m *Memory, v uint64, width int) {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(buf, v)
	}
	m.PushBytes(buf)
}

func popBE(m *Memory, width int) (uint64, error) {
	b, err := m.PopBytes(uint32(width))
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	default:
		return binary.BigEndian.Uint64(b), nil
	}
}
