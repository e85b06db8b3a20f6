package terminal

import (
	"bufio"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pnp3ds/pnp/pkg/hook"
)

func disasmPrint(p *hook.Patch, out io.Writer, showHeader bool) {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	if showHeader {
		fmt.Fprintf(bw, "TRAMPOLINE %#08x (code+%#x) session %#x\n", p.Addr, p.Offset, uint32(p.Session))
	}
	tw := tabwriter.NewWriter(bw, 1, 8, 1, '\t', 0)
	defer tw.Flush()
	for _, inst := range p.Disassemble() {
		atbr := ""
		if inst.Addr == p.Addr+hook.BranchOffset {
			atbr = "=>"
		}
		fmt.Fprintf(tw, "%s\t%#08x\t%08x\t%s\n", atbr, inst.Addr, inst.Word, inst.Text)
	}
}
