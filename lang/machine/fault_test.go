package machine_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/lang/compiler"
	"github.com/nicholaslyang/tci/lang/machine"
)

// TestStaleLocalPointerFaults covers spec.md §8 scenario 6: returning the
// address of a callee's local and dereferencing it in the caller must fail
// with InvalidPointer rather than silently reading whatever now occupies
// that stack slot. Var ids are never reused (see memory_test.go's
// TestVarBufferIDsNeverReused), so the dereference fails even though the
// stack position the pointer names has since been reallocated.
func TestStaleLocalPointerFaults(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata", "programs")
	src, err := os.ReadFile(filepath.Join(dir, "fault_stale_pointer.tci"))
	require.NoError(t, err)

	files := filedb.New()
	id := files.Add("fault_stale_pointer.tci", string(src))
	prog, err := compiler.Asm(files, id, string(src))
	require.NoError(t, err)

	it := machine.New(prog, nil)
	var out bytes.Buffer
	_, err = it.Run(&out)
	require.Error(t, err)

	rerr, ok := err.(*machine.RuntimeError)
	require.True(t, ok, "expected a *machine.RuntimeError, got %T", err)
	assert.Equal(t, "InvalidPointer", rerr.Err.ShortName)
}
