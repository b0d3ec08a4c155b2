package vm

import (
	"testing"

	"github.com/nalgeon/be"
)

func run(t *testing.T, prog Program) *VM {
	t.Helper()
	m := NewVM(prog)
	err := m.Run()
	be.Err(t, err, nil)
	return m
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		prog Program
		want int64
	}{
		{
			name: "add",
			prog: Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(2)},
				{Op: OpMov, A: Reg(RegEBX), B: Imm(3)},
				{Op: OpAdd, A: Reg(RegEAX), B: Reg(RegEBX)},
				{Op: OpRet},
			},
			want: 5,
		},
		{
			name: "sub",
			prog: Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(10)},
				{Op: OpSub, A: Reg(RegEAX), B: Imm(4)},
				{Op: OpRet},
			},
			want: 6,
		},
		{
			name: "imul",
			prog: Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(-3)},
				{Op: OpImul, A: Reg(RegEAX), B: Imm(7)},
				{Op: OpRet},
			},
			want: -21,
		},
		{
			name: "idiv truncates toward zero",
			prog: Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(-7)},
				{Op: OpIdiv, A: Reg(RegEAX), B: Imm(2)},
				{Op: OpRet},
			},
			want: -3,
		},
		{
			name: "and",
			prog: Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(7)},
				{Op: OpAnd, A: Reg(RegEAX), B: Imm(1)},
				{Op: OpRet},
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := run(t, tt.prog)
			be.Equal(t, m.Regs[RegEAX], tt.want)
			be.True(t, m.Halted)
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	m := NewVM(Program{
		{Op: OpMov, A: Reg(RegEAX), B: Imm(1)},
		{Op: OpIdiv, A: Reg(RegEAX), B: Imm(0)},
	})
	err := m.Run()
	be.Err(t, err, "division by zero")
}

func TestCompareAndSet(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		op   Opcode
		want int64
	}{
		{"sete equal", 4, 4, OpSete, 1},
		{"sete unequal", 4, 5, OpSete, 0},
		{"setne", 4, 5, OpSetne, 1},
		{"setl", 3, 5, OpSetl, 1},
		{"setl not less", 5, 3, OpSetl, 0},
		{"setle equal", 5, 5, OpSetle, 1},
		{"setg", 9, 2, OpSetg, 1},
		{"setge equal", 2, 2, OpSetge, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := run(t, Program{
				{Op: OpMov, A: Reg(RegEAX), B: Imm(tt.a)},
				{Op: OpCmp, A: Reg(RegEAX), B: Imm(tt.b)},
				{Op: tt.op, A: Reg(RegEAX)},
				{Op: OpAnd, A: Reg(RegEAX), B: Imm(1)},
				{Op: OpRet},
			})
			be.Equal(t, m.Regs[RegEAX], tt.want)
		})
	}
}

func TestConditionalJump(t *testing.T) {
	// eax starts 0; if 1 < 2 jump over the mov that would set it to 99.
	m := run(t, Program{
		{Op: OpMov, A: Reg(RegEAX), B: Imm(1)},
		{Op: OpCmp, A: Reg(RegEAX), B: Imm(2)},
		{Op: OpJl, A: Imm(4)},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(99)},
		{Op: OpRet},
	})
	be.Equal(t, m.Regs[RegEAX], int64(1))

	// Not taken: falls through into the mov.
	m = run(t, Program{
		{Op: OpMov, A: Reg(RegEAX), B: Imm(5)},
		{Op: OpCmp, A: Reg(RegEAX), B: Imm(2)},
		{Op: OpJl, A: Imm(4)},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(99)},
		{Op: OpRet},
	})
	be.Equal(t, m.Regs[RegEAX], int64(99))
}

func TestPushPop(t *testing.T) {
	m := run(t, Program{
		{Op: OpMov, A: Reg(RegEAX), B: Imm(42)},
		{Op: OpPush, A: Reg(RegEAX)},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(0)},
		{Op: OpPop, A: Reg(RegEBX)},
		{Op: OpMov, A: Reg(RegEAX), B: Reg(RegEBX)},
		{Op: OpRet},
	})
	be.Equal(t, m.Regs[RegEAX], int64(42))
	be.Equal(t, m.Regs[RegESP], int64(len(m.Mem)))
}

func TestCallAndReturn(t *testing.T) {
	// main: call 3; add eax, 1; ret.  callee: mov eax, 10; ret.
	m := run(t, Program{
		{Op: OpCall, A: Imm(3)},
		{Op: OpAdd, A: Reg(RegEAX), B: Imm(1)},
		{Op: OpRet},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(10)},
		{Op: OpRet},
	})
	be.Equal(t, m.Regs[RegEAX], int64(11))
	be.True(t, m.Halted)
}

func TestFrameStoreLoad(t *testing.T) {
	// Reserve one slot below ebp, store through si, clobber eax, load back.
	m := run(t, Program{
		{Op: OpSub, A: Reg(RegESP), B: Imm(1)},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(7)},
		{Op: OpSi, A: Imm(-1)},
		{Op: OpMov, A: Reg(RegEAX), B: Imm(0)},
		{Op: OpLi, A: Imm(-1)},
		{Op: OpAdd, A: Reg(RegESP), B: Imm(1)},
		{Op: OpRet},
	})
	be.Equal(t, m.Regs[RegEAX], int64(7))
}

func TestFrameAccessOutOfBounds(t *testing.T) {
	m := NewVM(Program{{Op: OpLi, A: Imm(5)}})
	err := m.Run()
	be.Err(t, err, "out of bounds")
}

func TestStepCeiling(t *testing.T) {
	m := NewVM(Program{{Op: OpJmp, A: Imm(0)}})
	m.MaxSteps = 100
	err := m.Run()
	be.Err(t, err, "exceeded 100 steps")
}

func TestFallOffEndHalts(t *testing.T) {
	m := run(t, Program{{Op: OpMov, A: Reg(RegEAX), B: Imm(3)}})
	be.True(t, m.Halted)
	be.Equal(t, m.Regs[RegEAX], int64(3))
}

func TestStackUnderflow(t *testing.T) {
	m := NewVM(Program{{Op: OpPop, A: Reg(RegEAX)}})
	err := m.Run()
	be.Err(t, err, "stack underflow")
}
