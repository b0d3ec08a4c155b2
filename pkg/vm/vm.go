// Package vm implements the toy stack machine that executes linked programs.
//
// The machine has four registers (an accumulator eax, a scratch register ebx,
// a frame pointer ebp and a stack pointer esp), comparison flags set by cmp,
// and a word-addressed stack. esp and ebp index into Mem; the stack grows
// toward lower indices. A ret with a fully unwound stack halts the machine,
// leaving the program result in the accumulator.
package vm

import "fmt"

type Opcode int

const (
	OpMov Opcode = iota
	OpAdd
	OpSub
	OpImul
	OpIdiv
	OpCmp
	OpAnd
	OpJmp
	OpJe
	OpJne
	OpJl
	OpJle
	OpJg
	OpJge
	OpPush
	OpPop
	OpCall
	OpRet
	OpSete
	OpSetne
	OpSetl
	OpSetle
	OpSetg
	OpSetge
	OpSi
	OpLi
)

var opcodeNames = [...]string{
	"mov", "add", "sub", "imul", "idiv", "cmp", "and",
	"jmp", "je", "jne", "jl", "jle", "jg", "jge",
	"push", "pop", "call", "ret",
	"sete", "setne", "setl", "setle", "setg", "setge",
	"si", "li",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

type Register int

const (
	RegEAX Register = iota
	RegEBX
	RegEBP
	RegESP
	regCount
)

var registerNames = [...]string{"eax", "ebx", "ebp", "esp"}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("reg(%d)", int(r))
}

// RegisterByName resolves an assembly register name.
func RegisterByName(name string) (Register, bool) {
	for i, n := range registerNames {
		if n == name {
			return Register(i), true
		}
	}
	return 0, false
}

type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandReg
	OperandImm
)

// Operand is either a register or a resolved immediate. Jump and call
// targets arrive as immediates holding an instruction index (the linker has
// already resolved labels).
type Operand struct {
	Kind OperandKind
	Reg  Register
	Imm  int64
}

func Reg(r Register) Operand { return Operand{Kind: OperandReg, Reg: r} }
func Imm(v int64) Operand    { return Operand{Kind: OperandImm, Imm: v} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return o.Reg.String()
	case OperandImm:
		return fmt.Sprintf("%d", o.Imm)
	}
	return ""
}

type Instr struct {
	Op Opcode
	A  Operand
	B  Operand
}

func (in Instr) String() string {
	switch {
	case in.A.Kind == OperandNone:
		return in.Op.String()
	case in.B.Kind == OperandNone:
		return fmt.Sprintf("%s %s", in.Op, in.A)
	default:
		return fmt.Sprintf("%s %s, %s", in.Op, in.A, in.B)
	}
}

type Program []Instr

// DefaultStackSlots is the stack size, in words, of a freshly created VM.
const DefaultStackSlots = 4096

// DefaultMaxSteps bounds execution so generated code that loops forever
// still terminates the test run.
const DefaultMaxSteps = 1 << 20

type VM struct {
	Regs [regCount]int64
	Mem  []int64
	IP   int

	// lastCmp holds the signed difference of the most recent cmp.
	lastCmp int64

	Steps    int
	MaxSteps int
	Halted   bool

	prog Program
}

func NewVM(prog Program) *VM {
	m := &VM{
		Mem:      make([]int64, DefaultStackSlots),
		MaxSteps: DefaultMaxSteps,
		prog:     prog,
	}
	m.Regs[RegESP] = int64(len(m.Mem))
	m.Regs[RegEBP] = int64(len(m.Mem))
	return m
}

// Run executes the program until it halts or the step ceiling is hit.
func (m *VM) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes a single instruction.
func (m *VM) Step() error {
	if m.Halted {
		return nil
	}
	if m.Steps >= m.MaxSteps {
		return fmt.Errorf("vm: exceeded %d steps (infinite loop?)", m.MaxSteps)
	}
	m.Steps++

	if m.IP < 0 || m.IP >= len(m.prog) {
		// Fell off the end of the instruction stream.
		m.Halted = true
		return nil
	}
	in := m.prog[m.IP]
	next := m.IP + 1

	switch in.Op {
	case OpMov:
		v, err := m.value(in.B)
		if err != nil {
			return err
		}
		if err := m.setReg(in.A, v); err != nil {
			return err
		}

	case OpAdd, OpSub, OpImul, OpIdiv, OpAnd:
		a, err := m.value(in.A)
		if err != nil {
			return err
		}
		b, err := m.value(in.B)
		if err != nil {
			return err
		}
		var v int64
		switch in.Op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpImul:
			v = a * b
		case OpIdiv:
			if b == 0 {
				return fmt.Errorf("vm: division by zero at instruction %d", m.IP)
			}
			v = a / b
		case OpAnd:
			v = a & b
		}
		if err := m.setReg(in.A, v); err != nil {
			return err
		}

	case OpCmp:
		a, err := m.value(in.A)
		if err != nil {
			return err
		}
		b, err := m.value(in.B)
		if err != nil {
			return err
		}
		m.lastCmp = a - b

	case OpJmp:
		next = int(in.A.Imm)
	case OpJe:
		if m.lastCmp == 0 {
			next = int(in.A.Imm)
		}
	case OpJne:
		if m.lastCmp != 0 {
			next = int(in.A.Imm)
		}
	case OpJl:
		if m.lastCmp < 0 {
			next = int(in.A.Imm)
		}
	case OpJle:
		if m.lastCmp <= 0 {
			next = int(in.A.Imm)
		}
	case OpJg:
		if m.lastCmp > 0 {
			next = int(in.A.Imm)
		}
	case OpJge:
		if m.lastCmp >= 0 {
			next = int(in.A.Imm)
		}

	case OpSete, OpSetne, OpSetl, OpSetle, OpSetg, OpSetge:
		var v int64
		switch in.Op {
		case OpSete:
			if m.lastCmp == 0 {
				v = 1
			}
		case OpSetne:
			if m.lastCmp != 0 {
				v = 1
			}
		case OpSetl:
			if m.lastCmp < 0 {
				v = 1
			}
		case OpSetle:
			if m.lastCmp <= 0 {
				v = 1
			}
		case OpSetg:
			if m.lastCmp > 0 {
				v = 1
			}
		case OpSetge:
			if m.lastCmp >= 0 {
				v = 1
			}
		}
		if err := m.setReg(in.A, v); err != nil {
			return err
		}

	case OpPush:
		v, err := m.value(in.A)
		if err != nil {
			return err
		}
		if err := m.push(v); err != nil {
			return err
		}

	case OpPop:
		v, err := m.pop()
		if err != nil {
			return err
		}
		if err := m.setReg(in.A, v); err != nil {
			return err
		}

	case OpCall:
		if err := m.push(int64(next)); err != nil {
			return err
		}
		next = int(in.A.Imm)

	case OpRet:
		if m.Regs[RegESP] >= int64(len(m.Mem)) {
			// Nothing left to return to.
			m.Halted = true
			m.IP = next
			return nil
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		next = int(v)

	case OpSi:
		addr := m.Regs[RegEBP] + in.A.Imm
		if addr < 0 || addr >= int64(len(m.Mem)) {
			return fmt.Errorf("vm: si %d out of bounds (ebp=%d)", in.A.Imm, m.Regs[RegEBP])
		}
		m.Mem[addr] = m.Regs[RegEAX]

	case OpLi:
		addr := m.Regs[RegEBP] + in.A.Imm
		if addr < 0 || addr >= int64(len(m.Mem)) {
			return fmt.Errorf("vm: li %d out of bounds (ebp=%d)", in.A.Imm, m.Regs[RegEBP])
		}
		m.Regs[RegEAX] = m.Mem[addr]

	default:
		return fmt.Errorf("vm: unknown opcode %d at instruction %d", in.Op, m.IP)
	}

	m.IP = next
	return nil
}

func (m *VM) value(o Operand) (int64, error) {
	switch o.Kind {
	case OperandReg:
		return m.Regs[o.Reg], nil
	case OperandImm:
		return o.Imm, nil
	}
	return 0, fmt.Errorf("vm: missing operand at instruction %d", m.IP)
}

func (m *VM) setReg(o Operand, v int64) error {
	if o.Kind != OperandReg {
		return fmt.Errorf("vm: destination must be a register at instruction %d", m.IP)
	}
	m.Regs[o.Reg] = v
	return nil
}

func (m *VM) push(v int64) error {
	sp := m.Regs[RegESP] - 1
	if sp < 0 {
		return fmt.Errorf("vm: stack overflow at instruction %d", m.IP)
	}
	m.Regs[RegESP] = sp
	m.Mem[sp] = v
	return nil
}

func (m *VM) pop() (int64, error) {
	sp := m.Regs[RegESP]
	if sp >= int64(len(m.Mem)) {
		return 0, fmt.Errorf("vm: stack underflow at instruction %d", m.IP)
	}
	m.Regs[RegESP] = sp + 1
	return m.Mem[sp], nil
}
