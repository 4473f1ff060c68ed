package machine

import (
	"encoding/binary"
	"strconv"
	"strings"
	"unicode/utf8"
)

// libPrintf implements printf(fmt, ...). printf is always treated as
// variadic at the call site regardless of how it is declared in the
// typed-function tree (see translate.go), so a count slot is always
// present: stack layout from top is the count slot, then the arguments in
// reverse push order (fmt nearest the bottom, just above the return
// slot).
func libPrintf(it *Interpreter) error {
	stack := it.Mem.Stack

	countID, ok := stack.NthFromTop(0)
	if !ok {
		return errStackUnderflow("printf: missing argument count")
	}
	countBytes, err := stack.Read(countID, 0, 4)
	if err != nil {
		return err
	}
	nargs := int(binary.BigEndian.Uint32(countBytes))
	if nargs < 1 {
		return errInvalidFormatString("printf requires at least a format string argument")
	}

	argID := func(i int) (uint32, error) {
		id, ok := stack.NthFromTop(nargs - i)
		if !ok {
			return 0, errStackUnderflow("printf: missing argument")
		}
		return id, nil
	}
	retID, ok := stack.NthFromTop(nargs + 1)
	if !ok {
		return errStackUnderflow("printf: missing return slot")
	}

	fmtID, err := argID(0)
	if err != nil {
		return err
	}
	fmtPtrBytes, err := stack.Read(fmtID, 0, 8)
	if err != nil {
		return err
	}
	fmtPtr := VarPointer(binary.BigEndian.Uint64(fmtPtrBytes))
	fmtStr, err := readCString(it.Mem, fmtPtr)
	if err != nil {
		return err
	}

	next := 1 // index into the 1..nargs-1 variadic argument range
	readArgInt := func() (uint64, uint32, error) {
		if next >= nargs {
			return 0, 0, errInvalidArgIndex("printf format consumed more arguments than were passed")
		}
		id, err := argID(next)
		next++
		if err != nil {
			return 0, 0, err
		}
		length, _ := stack.Length(id)
		data, err := stack.Read(id, 0, length)
		if err != nil {
			return 0, 0, err
		}
		var buf [8]byte
		copy(buf[8-len(data):], data)
		return binary.BigEndian.Uint64(buf[:]), length, nil
	}

	var out strings.Builder
	i := 0
	for i < len(fmtStr) {
		c := fmtStr[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(fmtStr) {
			return errInvalidFormatString("format string ends with a bare %")
		}

		var flagZero, flagLeft, flagPlus, flagSpace, flagAlt bool
		for i < len(fmtStr) {
			switch fmtStr[i] {
			case '0':
				flagZero = true
			case '-':
				flagLeft = true
			case '+':
				flagPlus = true
			case ' ':
				flagSpace = true
			case '#':
				flagAlt = true
			default:
				goto flagsDone
			}
			i++
		}
	flagsDone:
		_ = flagAlt

		width := 0
		if i < len(fmtStr) && fmtStr[i] == '*' {
			v, _, err := readArgInt()
			if err != nil {
				return err
			}
			w := int(int32(uint32(v)))
			if w < 0 {
				flagLeft = true
				w = -w
			}
			width = w
			i++
		} else {
			start := i
			for i < len(fmtStr) && fmtStr[i] >= '0' && fmtStr[i] <= '9' {
				i++
			}
			if i > start {
				width, _ = strconv.Atoi(fmtStr[start:i])
			}
		}

		precision := -1
		if i < len(fmtStr) && fmtStr[i] == '.' {
			i++
			if i < len(fmtStr) && fmtStr[i] == '*' {
				v, _, err := readArgInt()
				if err != nil {
					return err
				}
				p := int(int32(uint32(v)))
				if p < 0 {
					p = 0
				}
				precision = p
				i++
			} else {
				start := i
				for i < len(fmtStr) && fmtStr[i] >= '0' && fmtStr[i] <= '9' {
					i++
				}
				precision, _ = strconv.Atoi(fmtStr[start:i])
			}
		}

		for i < len(fmtStr) && (fmtStr[i] == 'l') {
			i++
		}

		if i >= len(fmtStr) {
			return errInvalidFormatString("format string ends inside a conversion specifier")
		}
		conv := fmtStr[i]
		i++

		var piece string
		switch conv {
		case '%':
			piece = "%"

		case 'u':
			v, _, err := readArgInt()
			if err != nil {
				return err
			}
			piece = strconv.FormatUint(v, 10)

		case 'i', 'd':
			v, length, err := readArgInt()
			if err != nil {
				return err
			}
			signed := signExtend[int64](v, int(length)*8)
			if signed >= 0 && flagPlus {
				piece = "+" + strconv.FormatInt(signed, 10)
			} else if signed >= 0 && flagSpace {
				piece = " " + strconv.FormatInt(signed, 10)
			} else {
				piece = strconv.FormatInt(signed, 10)
			}

		case 'c':
			v, _, err := readArgInt()
			if err != nil {
				return err
			}
			piece = string([]byte{byte(v)})

		case 's':
			sArgID, err := argID(next)
			if err != nil {
				return err
			}
			next++
			ptrBytes, err := stack.Read(sArgID, 0, 8)
			if err != nil {
				return err
			}
			ptr := VarPointer(binary.BigEndian.Uint64(ptrBytes))
			s, err := readCString(it.Mem, ptr)
			if err != nil {
				return err
			}
			if precision >= 0 && precision < len(s) {
				s = s[:precision]
			}
			piece = s

		default:
			return errInvalidFormatString("unsupported format conversion %" + string(conv))
		}

		if width > len(piece) {
			pad := strings.Repeat(" ", width-len(piece))
			if flagZero && !flagLeft && conv != 's' && conv != 'c' {
				pad = strings.Repeat("0", width-len(piece))
			}
			if flagLeft {
				piece = piece + strings.Repeat(" ", width-len(piece))
			} else {
				piece = pad + piece
			}
		}
		out.WriteString(piece)
	}

	sanitized := sanitizeUTF8(out.String())
	n, err := it.out.Write([]byte(sanitized))
	if err != nil {
		return errWriteFailed(err.Error())
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	return stack.Write(retID, 0, buf[:])
}

// readCString reads bytes from ptr until a NUL terminator, failing if the
// underlying variable ends before one is found.
func readCString(m *Memory, ptr VarPointer) (string, error) {
	var b strings.Builder
	for off := uint32(0); ; off++ {
		chunk, err := m.ReadPointer(ptr.AddOffset(int32(off)), 1)
		if err != nil {
			return "", errMissingNullTerm("string is not NUL-terminated within its allocation")
		}
		if chunk[0] == 0 {
			return b.String(), nil
		}
		b.WriteByte(chunk[0])
	}
}

// sanitizeUTF8 replaces any invalid byte sequence with U+FFFD, the
// replacement character, before writing guest-produced bytes to a text
// output.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}
