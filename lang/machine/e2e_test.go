package machine_test

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/internal/filetest"
	"github.com/nicholaslyang/tci/lang/compiler"
	"github.com/nicholaslyang/tci/lang/machine"
)

var updatePrograms = flag.Bool("test.update-programs", false, "update golden stdout for testdata/programs fixtures")

// TestPrograms assembles and runs every textual program under
// testdata/programs, diffing its stdout against the matching .want golden
// file. This exercises the assembler's text format, the dispatch loop, and
// the printf/library-function surface end to end, the same golden-file
// harness shape as the teacher's (disabled) machine_test.go. Fixtures
// prefixed fault_ are excluded: those are deliberately faulting programs
// with their own dedicated tests (see fault_test.go), not clean-exit/
// golden-stdout cases.
func TestPrograms(t *testing.T) {
	dir := filepath.Join("..", "..", "testdata", "programs")
	for _, fi := range filetest.SourceFiles(t, dir, ".tci") {
		fi := fi
		if strings.HasPrefix(fi.Name(), "fault_") {
			continue
		}
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, fi.Name()))
			require.NoError(t, err)

			files := filedb.New()
			id := files.Add(fi.Name(), string(src))
			prog, err := compiler.Asm(files, id, string(src))
			require.NoError(t, err)

			var out bytes.Buffer
			it := machine.New(prog, nil)
			code, err := it.Run(&out)
			require.NoError(t, err)
			require.Equal(t, 0, code)

			filetest.DiffOutput(t, fi, out.String(), dir, updatePrograms)
		})
	}
}
