package bytecode_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/wtstar/wt/internal/filetest"
	"github.com/wtstar/wt/lang/bytecode"
)

var testUpdateGoldenTests = flag.Bool("test.update-golden-tests", false, "If set, replace expected assembler test results with actual results.")

// assembleAndDump produces the disassembly part of the wtvm dump --code
// output: assemble the source, then disassemble the resulting container.
// A failing assemble or
// parse reports its wrapped error instead.
func assembleAndDump(name string, src []byte) (output, errOutput string) {
	bin, err := bytecode.Assemble(name, src)
	if err != nil {
		return "", err.Error()
	}
	p, err := bytecode.Parse(bin)
	if err != nil {
		return "", err.Error()
	}
	return bytecode.Disassemble(p), ""
}

func TestAssembleGolden(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".wta") {
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(srcDir, fi.Name()))
			if err != nil {
				t.Fatal(err)
			}

			out, errOut := assembleAndDump(fi.Name(), src)
			filetest.DiffOutput(t, fi, out, resultDir, testUpdateGoldenTests)
			filetest.DiffErrors(t, fi, errOut, resultDir, testUpdateGoldenTests)
		})
	}
}
