// Package asm links generated assembly text into an executable vm.Program.
//
// Linking is two passes over the source: pass 1 records the instruction
// index of every label, pass 2 encodes instructions with jump and call
// targets resolved to those indices.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"stackcc/pkg/vm"
)

// twoOperandOps take a destination register and a register or immediate.
var twoOperandOps = map[string]vm.Opcode{
	"mov":  vm.OpMov,
	"add":  vm.OpAdd,
	"sub":  vm.OpSub,
	"mul":  vm.OpImul,
	"imul": vm.OpImul,
	"div":  vm.OpIdiv,
	"idiv": vm.OpIdiv,
	"cmp":  vm.OpCmp,
	"and":  vm.OpAnd,
}

// oneRegisterOps take a single register operand.
var oneRegisterOps = map[string]vm.Opcode{
	"push":  vm.OpPush,
	"pop":   vm.OpPop,
	"sete":  vm.OpSete,
	"setne": vm.OpSetne,
	"setl":  vm.OpSetl,
	"setle": vm.OpSetle,
	"setg":  vm.OpSetg,
	"setge": vm.OpSetge,
}

// labelOps take a single label operand resolved in pass 2.
var labelOps = map[string]vm.Opcode{
	"jmp":  vm.OpJmp,
	"je":   vm.OpJe,
	"jne":  vm.OpJne,
	"jl":   vm.OpJl,
	"jle":  vm.OpJle,
	"jg":   vm.OpJg,
	"jge":  vm.OpJge,
	"call": vm.OpCall,
}

// offsetOps take a single signed frame offset.
var offsetOps = map[string]vm.Opcode{
	"si": vm.OpSi,
	"li": vm.OpLi,
}

type Linker struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewLinker() *Linker {
	return &Linker{labels: make(map[string]int)}
}

// Link resolves labels and encodes code into an executable program.
func Link(code string) (vm.Program, error) {
	return NewLinker().Link(code)
}

func (l *Linker) Link(code string) (vm.Program, error) {
	lines := strings.Split(code, "\n")

	if err := l.pass1(lines); err != nil {
		return nil, err
	}
	return l.pass2(lines)
}

// Labels returns the resolved label table. Valid after Link.
func (l *Linker) Labels() map[string]int {
	return l.labels
}

func (l *Linker) pass1(lines []string) error {
	addr := 0
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return err
		}
		for _, lbl := range p.labels {
			if _, exists := l.labels[lbl]; exists {
				return fmt.Errorf("duplicate label %q on line %d", lbl, p.lineNo)
			}
			l.labels[lbl] = addr
		}
		if p.mnemonic != "" {
			addr++
		}
	}
	return nil
}

func (l *Linker) pass2(lines []string) (vm.Program, error) {
	var prog vm.Program
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		if p.mnemonic == "" {
			continue
		}
		in, err := l.encode(p)
		if err != nil {
			return nil, err
		}
		prog = append(prog, in)
	}
	return prog, nil
}

func (l *Linker) encode(p parsedLine) (vm.Instr, error) {
	m := p.mnemonic

	if op, ok := twoOperandOps[m]; ok {
		if len(p.operands) != 2 {
			return vm.Instr{}, fmt.Errorf("line %d: %s expects 2 operands, got %d", p.lineNo, m, len(p.operands))
		}
		dst, err := parseRegister(p.operands[0], p.lineNo)
		if err != nil {
			return vm.Instr{}, err
		}
		src, err := parseRegisterOrImmediate(p.operands[1], p.lineNo)
		if err != nil {
			return vm.Instr{}, err
		}
		return vm.Instr{Op: op, A: dst, B: src}, nil
	}

	if op, ok := oneRegisterOps[m]; ok {
		if len(p.operands) != 1 {
			return vm.Instr{}, fmt.Errorf("line %d: %s expects 1 operand, got %d", p.lineNo, m, len(p.operands))
		}
		reg, err := parseRegister(p.operands[0], p.lineNo)
		if err != nil {
			return vm.Instr{}, err
		}
		return vm.Instr{Op: op, A: reg}, nil
	}

	if op, ok := labelOps[m]; ok {
		if len(p.operands) != 1 {
			return vm.Instr{}, fmt.Errorf("line %d: %s expects a label, got %d operands", p.lineNo, m, len(p.operands))
		}
		target, ok := l.labels[p.operands[0]]
		if !ok {
			return vm.Instr{}, fmt.Errorf("line %d: undefined label %q", p.lineNo, p.operands[0])
		}
		return vm.Instr{Op: op, A: vm.Imm(int64(target))}, nil
	}

	if op, ok := offsetOps[m]; ok {
		if len(p.operands) != 1 {
			return vm.Instr{}, fmt.Errorf("line %d: %s expects an offset, got %d operands", p.lineNo, m, len(p.operands))
		}
		off, err := strconv.ParseInt(p.operands[0], 10, 64)
		if err != nil {
			return vm.Instr{}, fmt.Errorf("line %d: bad offset %q", p.lineNo, p.operands[0])
		}
		return vm.Instr{Op: op, A: vm.Imm(off)}, nil
	}

	if m == "ret" {
		if len(p.operands) != 0 {
			return vm.Instr{}, fmt.Errorf("line %d: ret takes no operands", p.lineNo)
		}
		return vm.Instr{Op: vm.OpRet}, nil
	}

	return vm.Instr{}, fmt.Errorf("line %d: unknown mnemonic %q", p.lineNo, m)
}

func parseRegister(s string, lineNo int) (vm.Operand, error) {
	r, ok := vm.RegisterByName(s)
	if !ok {
		return vm.Operand{}, fmt.Errorf("line %d: unknown register %q", lineNo, s)
	}
	return vm.Reg(r), nil
}

func parseRegisterOrImmediate(s string, lineNo int) (vm.Operand, error) {
	if r, ok := vm.RegisterByName(s); ok {
		return vm.Reg(r), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return vm.Operand{}, fmt.Errorf("line %d: bad operand %q", lineNo, s)
	}
	return vm.Imm(v), nil
}

// parseLine splits one source line into labels, a mnemonic and operands.
// A line may carry any number of "name:" labels followed by at most one
// instruction. Comments start with ';'.
func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := raw
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	for line != "" {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			break
		}
		head := strings.TrimSpace(line[:colon])
		if head == "" || strings.ContainsAny(head, " \t,") {
			break
		}
		p.labels = append(p.labels, head)
		line = strings.TrimSpace(line[colon+1:])
	}

	if line == "" {
		return p, nil
	}

	fields := strings.Fields(line)
	p.mnemonic = strings.ToLower(fields[0])
	rest := strings.TrimSpace(line[len(fields[0]):])
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
	}
	return p, nil
}
