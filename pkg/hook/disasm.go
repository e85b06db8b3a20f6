package hook

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm/armasm"
)

// Instruction is one disassembled word.
type Instruction struct {
	Addr uint32
	Word uint32
	Op   armasm.Op
	Text string
}

// Disassemble decodes code as ARM instructions loaded at pc. Words that do
// not decode are shown as data.
func Disassemble(code []byte, pc uint32) []Instruction {
	r := make([]Instruction, 0, len(code)/4)
	for i := 0; i+4 <= len(code); i += 4 {
		inst := Instruction{
			Addr: pc + uint32(i),
			Word: binary.LittleEndian.Uint32(code[i:]),
		}
		dec, err := armasm.Decode(code[i:i+4], armasm.ModeARM)
		if err != nil {
			inst.Text = fmt.Sprintf(".word %#08x", inst.Word)
		} else {
			inst.Op = dec.Op
			inst.Text = armasm.GNUSyntax(dec)
		}
		r = append(r, inst)
	}
	return r
}

// Disassemble decodes the trampoline. The trailing data words are labelled
// instead of decoded.
func (p *Patch) Disassemble() []Instruction {
	r := Disassemble(p.Code[:SessionHandleOffset], p.Addr)
	for _, d := range []struct {
		off  int
		name string
	}{
		{SessionHandleOffset, "session handle"},
		{CommandHeaderOffset, "command header"},
		{CommandHeaderOffset + 4, "unused"},
	} {
		w := binary.LittleEndian.Uint32(p.Code[d.off:])
		r = append(r, Instruction{
			Addr: p.Addr + uint32(d.off),
			Word: w,
			Text: fmt.Sprintf(".word %#08x ; %s", w, d.name),
		})
	}
	return r
}
