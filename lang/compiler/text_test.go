package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholaslyang/tci/internal/filedb"
)

const helloSrc = `
data:
  0 msg = "hi\n"

function main:
  params: 0
  varargs: false
  code:
    stack_alloc 4
    make_temp_i32 0
    set_local -1 0 4
    ret
`

func TestAsmParsesFunctionsAndData(t *testing.T) {
	files := filedb.New()
	id := files.Add("hello.tci", helloSrc)

	prog, err := Asm(files, id, helloSrc)
	require.NoError(t, err)

	require.Len(t, prog.Data, 1)
	assert.Equal(t, "msg", prog.Data[0].Name)
	assert.Equal(t, "hi\n", string(prog.Data[0].Data))

	assert.Equal(t, Func, prog.Ops[prog.MainIdx].Op.Code)
	assert.Equal(t, "main", prog.Ops[prog.MainIdx].Op.Sym)
}

func TestAsmResolvesJumpLabels(t *testing.T) {
	src := `
function main:
  params: 0
  varargs: false
  code:
    make_temp_i32 0
    jz_32 @done
    jump @done
  @done:
    stack_alloc 4
    make_temp_i32 0
    set_local -1 0 4
    ret
`
	files := filedb.New()
	id := files.Add("jump.tci", src)
	prog, err := Asm(files, id, src)
	require.NoError(t, err)

	for _, top := range prog.Ops {
		if top.Op.Code.IsJump() {
			assert.Less(t, int(top.Op.Target), len(prog.Ops))
		}
	}
}

func TestAsmMissingMain(t *testing.T) {
	src := "function notmain:\n  params: 0\n  varargs: false\n  code:\n    ret\n"
	files := filedb.New()
	id := files.Add("nomain.tci", src)
	_, err := Asm(files, id, src)
	require.Error(t, err)
	diag, ok := err.(filedb.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "missing_main", diag.ShortName)
}

func TestDasmAsmRoundTrip(t *testing.T) {
	files := filedb.New()
	id := files.Add("hello.tci", helloSrc)
	prog, err := Asm(files, id, helloSrc)
	require.NoError(t, err)

	text := Dasm(prog)

	files2 := filedb.New()
	id2 := files2.Add("hello2.tci", text)
	prog2, err := Asm(files2, id2, text)
	require.NoError(t, err)

	require.Equal(t, len(prog.Ops), len(prog2.Ops))
	for i := range prog.Ops {
		assert.Equal(t, prog.Ops[i].Op.Code, prog2.Ops[i].Op.Code, "op %d", i)
	}
}
