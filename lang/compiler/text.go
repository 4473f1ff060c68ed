package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicholaslyang/tci/internal/filedb"
)

// Dasm renders a linked Program as the textual program format: one
// "function <sym>:" section per function, its opcodes one per line with
// jump targets rendered as local "@label" references instead of raw
// opcode indices, and a "data:" section listing the static/binary
// variables referenced by MakeTempBinaryPtr.
func Dasm(prog *Program) string {
	var b strings.Builder

	if len(prog.Data) > 0 {
		b.WriteString("data:\n")
		for i, d := range prog.Data {
			fmt.Fprintf(&b, "  %d %s = %s\n", i, d.Name, strconv.Quote(string(d.Data)))
		}
		b.WriteString("\n")
	}

	headers := functionHeaders(prog.Ops)
	symAt := make(map[uint32]string, len(headers))
	for _, h := range headers {
		symAt[h.idx] = prog.Ops[h.idx].Op.Sym
	}

	for fi, h := range headers {
		end := uint32(len(prog.Ops))
		if fi+1 < len(headers) {
			end = headers[fi+1].idx
		}

		hop := prog.Ops[h.idx].Op
		fmt.Fprintf(&b, "function %s:\n", hop.Sym)
		fmt.Fprintf(&b, "  params: %d\n", hop.NumParams)
		fmt.Fprintf(&b, "  varargs: %v\n", hop.Varargs)
		b.WriteString("  code:\n")

		labels := jumpLabelsInRange(prog.Ops, h.idx, end)

		for idx := h.idx; idx < end; idx++ {
			if name, ok := labels[idx]; ok {
				fmt.Fprintf(&b, "  @%s:\n", name)
			}
			if idx == h.idx {
				continue // the function header line already printed above
			}
			op := prog.Ops[idx].Op
			fmt.Fprintf(&b, "    %s\n", formatOp(op, labels, symAt))
		}
		b.WriteString("\n")
	}

	return b.String()
}

type funcHeader struct {
	idx uint32
	sym string
}

func functionHeaders(ops []TaggedOpcode) []funcHeader {
	var out []funcHeader
	for i, op := range ops {
		if op.Op.Code == Func {
			out = append(out, funcHeader{idx: uint32(i), sym: op.Op.Sym})
		}
	}
	return out
}

func jumpLabelsInRange(ops []TaggedOpcode, start, end uint32) map[uint32]string {
	labels := make(map[uint32]string)
	n := 0
	for i := start; i < end; i++ {
		op := ops[i].Op
		if !op.Code.IsJump() {
			continue
		}
		if _, ok := labels[op.Target]; ok {
			continue
		}
		labels[op.Target] = fmt.Sprintf("L%d", n)
		n++
	}
	return labels
}

func formatOp(op Op, labels map[uint32]string, symAt map[uint32]string) string {
	name := op.Code.String()
	switch op.Code {
	case Func:
		return name // never reached; the header is rendered by its caller
	case Call:
		if sym, ok := symAt[op.Target]; ok {
			return fmt.Sprintf("%s %s", name, sym)
		}
		return fmt.Sprintf("%s %s", name, op.Sym)
	case LibCall:
		return fmt.Sprintf("%s %s", name, op.Sym)
	case Ret, Nop:
		return name
	case Ecall:
		return fmt.Sprintf("%s %d", name, op.EcallCode)
	case StackAlloc, StackAllocDyn, Pop, PushUndef, PushDup:
		return fmt.Sprintf("%s %d", name, op.Bytes)
	case StackDealloc, StackAddToTemp:
		return name
	case PopKeep:
		return fmt.Sprintf("%s %d %d", name, op.Drop, op.Keep)
	case Swap:
		return fmt.Sprintf("%s %d %d", name, op.Top, op.Bottom)
	case PopIntoTopVar:
		return fmt.Sprintf("%s %d %d", name, op.Offset, op.Bytes)
	case MakeTempI8:
		return fmt.Sprintf("%s %d", name, op.I8)
	case MakeTempI32:
		return fmt.Sprintf("%s %d", name, op.I32)
	case MakeTempI64:
		return fmt.Sprintf("%s %d", name, op.I64)
	case MakeTempU64:
		return fmt.Sprintf("%s %d", name, op.U64)
	case MakeTempF64:
		return fmt.Sprintf("%s %v", name, op.F64)
	case MakeTempBinaryPtr:
		return fmt.Sprintf("%s %d %d", name, op.PtrVar, op.Offset)
	case MakeTempLocalStackPtr:
		return fmt.Sprintf("%s %d %d", name, op.Var, op.Offset)
	case GetLocal, SetLocal:
		return fmt.Sprintf("%s %d %d %d", name, op.Var, op.Offset, op.Bytes)
	case Get, Set:
		return fmt.Sprintf("%s %d %d", name, op.Offset, op.Bytes)
	case Jump, JumpIfZero8, JumpIfZero16, JumpIfZero32, JumpIfZero64,
		JumpIfNotZero8, JumpIfNotZero16, JumpIfNotZero32, JumpIfNotZero64:
		return fmt.Sprintf("%s @%s", name, labels[op.Target])
	default:
		return name
	}
}

// Asm parses the textual program format produced by Dasm (or hand-written
// in the same shape) into a linked Program. Unlike Assembler.Assemble,
// which links a freshly-emitted opcode stream against in-progress funcEntry
// state, Asm resolves Call targets directly against "function <sym>:"
// section headers found in the text, since there is no typed-function tree
// behind a hand-authored program.
func Asm(files *filedb.FileDb, fileID filedb.FileID, src string) (*Program, error) {
	lines := strings.Split(src, "\n")

	var ops []TaggedOpcode
	var data []StaticVar
	funcAt := make(map[string]uint32)

	type pendingJump struct {
		opIdx int
		label string
	}
	var pendingJumps []pendingJump
	labelPos := make(map[string]uint32)

	section := ""
	var curFuncIdx int = -1
	var curParams int32
	var curVarargs bool
	haveHeader := false

	loc := filedb.Zero
	if fileID >= 0 {
		loc = filedb.CodeLoc{File: fileID}
	}

	flushHeader := func() {
		if curFuncIdx >= 0 && !haveHeader {
			ops[curFuncIdx].Op.NumParams = curParams
			ops[curFuncIdx].Op.Varargs = curVarargs
			haveHeader = true
		}
	}

	for ln, raw := range lines {
		line := raw
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case trimmed == "data:":
			section = "data"
			continue
		case strings.HasPrefix(trimmed, "function "):
			flushHeader()
			sym := strings.TrimSuffix(strings.TrimPrefix(trimmed, "function "), ":")
			sym = strings.TrimSpace(sym)
			curFuncIdx = len(ops)
			funcAt[sym] = uint32(curFuncIdx)
			ops = append(ops, TaggedOpcode{Op: Op{Code: Func, Sym: sym}, Loc: loc})
			curParams, curVarargs, haveHeader = 0, false, false
			section = "func"
			continue
		case trimmed == "code:":
			continue
		case strings.HasPrefix(trimmed, "params:"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "params:")))
			if err != nil {
				return nil, textErr(ln, "invalid params count: %v", err)
			}
			curParams = int32(n)
			continue
		case strings.HasPrefix(trimmed, "varargs:"):
			curVarargs = strings.TrimSpace(strings.TrimPrefix(trimmed, "varargs:")) == "true"
			continue
		}

		if section == "data" {
			fields := strings.SplitN(trimmed, " ", 3)
			if len(fields) < 3 {
				return nil, textErr(ln, "malformed data line %q", trimmed)
			}
			rest := strings.TrimSpace(fields[2])
			name := fields[1]
			eq := strings.Index(rest, "=")
			if eq < 0 {
				return nil, textErr(ln, "malformed data line %q", trimmed)
			}
			lit := strings.TrimSpace(rest[eq+1:])
			value, err := strconv.Unquote(lit)
			if err != nil {
				return nil, textErr(ln, "invalid string literal %q: %v", lit, err)
			}
			data = append(data, StaticVar{Name: name, Data: []byte(value)})
			continue
		}

		if strings.HasSuffix(trimmed, ":") && strings.HasPrefix(trimmed, "@") {
			flushHeader()
			labelPos[strings.TrimSuffix(strings.TrimPrefix(trimmed, "@"), ":")] = uint32(len(ops))
			continue
		}

		flushHeader()
		fields := strings.Fields(trimmed)
		op, jumpLabel, err := parseOp(fields)
		if err != nil {
			return nil, textErr(ln, "%v", err)
		}
		idx := len(ops)
		ops = append(ops, TaggedOpcode{Op: op, Loc: loc})
		if jumpLabel != "" {
			pendingJumps = append(pendingJumps, pendingJump{opIdx: idx, label: jumpLabel})
		}
	}
	flushHeader()

	for _, pj := range pendingJumps {
		pos, ok := labelPos[pj.label]
		if !ok {
			return nil, fmt.Errorf("compiler: undefined label @%s", pj.label)
		}
		ops[pj.opIdx].Op.Target = pos
	}

	for i := range ops {
		op := &ops[i].Op
		if op.Code != Call {
			continue
		}
		if target, ok := funcAt[op.Sym]; ok {
			op.Target = target
			continue
		}
		if libFuncs[op.Sym] {
			op.Code = LibCall
			continue
		}
		return nil, fmt.Errorf("compiler: call to undefined function %q", op.Sym)
	}

	mainIdx, ok := funcAt["main"]
	if !ok {
		return nil, filedb.Diagnostic{ShortName: "missing_main", Message: "missing main function definition"}
	}

	return &Program{Files: files, Ops: ops, Data: data, MainIdx: mainIdx}, nil
}

func textErr(line int, format string, args ...any) error {
	return fmt.Errorf("compiler: line %d: %s", line+1, fmt.Sprintf(format, args...))
}

func parseOp(fields []string) (op Op, jumpLabel string, err error) {
	if len(fields) == 0 {
		return Op{}, "", fmt.Errorf("empty instruction")
	}
	name := fields[0]
	code, ok := nameToCode[name]
	if !ok {
		return Op{}, "", fmt.Errorf("unknown opcode %q", name)
	}
	args := fields[1:]

	u32 := func(i int) (uint32, error) {
		v, e := strconv.ParseUint(args[i], 10, 32)
		return uint32(v), e
	}
	i32 := func(i int) (int32, error) {
		v, e := strconv.ParseInt(args[i], 10, 32)
		return int32(v), e
	}

	switch code {
	case Ret, Nop, StackDealloc, StackAddToTemp:
		return Op{Code: code}, "", nil

	case Call, LibCall:
		if len(args) != 1 {
			return Op{}, "", fmt.Errorf("%s expects a symbol name", name)
		}
		return Op{Code: Call, Sym: args[0]}, "", nil

	case Ecall:
		v, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, EcallCode: v}, "", nil

	case StackAlloc, StackAllocDyn, Pop, PushUndef, PushDup:
		v, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Bytes: v}, "", nil

	case PopKeep:
		drop, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		keep, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Drop: drop, Keep: keep}, "", nil

	case Swap:
		top, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		bottom, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Top: top, Bottom: bottom}, "", nil

	case PopIntoTopVar:
		off, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		bytes, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Offset: off, Bytes: bytes}, "", nil

	case MakeTempI8:
		v, e := strconv.ParseInt(args[0], 10, 8)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, I8: int8(v)}, "", nil

	case MakeTempI32:
		v, e := i32(0)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, I32: v}, "", nil

	case MakeTempI64:
		v, e := strconv.ParseInt(args[0], 10, 64)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, I64: v}, "", nil

	case MakeTempU64:
		v, e := strconv.ParseUint(args[0], 10, 64)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, U64: v}, "", nil

	case MakeTempF64:
		v, e := strconv.ParseFloat(args[0], 64)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, F64: v}, "", nil

	case MakeTempBinaryPtr:
		pv, e := i32(0)
		if e != nil {
			return Op{}, "", e
		}
		off, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, PtrVar: pv, Offset: off}, "", nil

	case MakeTempLocalStackPtr:
		v, e := i32(0)
		if e != nil {
			return Op{}, "", e
		}
		off, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Var: v, Offset: off}, "", nil

	case GetLocal, SetLocal:
		v, e := i32(0)
		if e != nil {
			return Op{}, "", e
		}
		off, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		bytes, e := u32(2)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Var: v, Offset: off, Bytes: bytes}, "", nil

	case Get, Set:
		off, e := u32(0)
		if e != nil {
			return Op{}, "", e
		}
		bytes, e := u32(1)
		if e != nil {
			return Op{}, "", e
		}
		return Op{Code: code, Offset: off, Bytes: bytes}, "", nil

	case Jump, JumpIfZero8, JumpIfZero16, JumpIfZero32, JumpIfZero64,
		JumpIfNotZero8, JumpIfNotZero16, JumpIfNotZero32, JumpIfNotZero64:
		if len(args) != 1 || !strings.HasPrefix(args[0], "@") {
			return Op{}, "", fmt.Errorf("%s expects a @label operand", name)
		}
		return Op{Code: code}, strings.TrimPrefix(args[0], "@"), nil

	default:
		return Op{Code: code}, "", nil
	}
}
