package main

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/nalgeon/be"

	"stackcc/pkg/asm"
	"stackcc/pkg/compiler"
	"stackcc/pkg/diag"
	"stackcc/pkg/vm"
)

// compile runs the whole middle end: parse, annotate, lower to CFGs and
// emit assembly. Warnings are counted but not fatal.
func compile(t *testing.T, source string) (string, int) {
	t.Helper()

	stmts, err := compiler.Parse(source)
	if err != nil {
		t.Fatalf("parsing failed: %v", err)
	}
	stmts = compiler.NewAnnotator().Annotate(stmts)
	graphs := compiler.BuildCFGs(stmts)

	reporter := diag.NewReporter(nil)
	return compiler.GenerateProgram(graphs, reporter), reporter.Count()
}

// execute links the assembly and runs it, returning the accumulator.
func execute(t *testing.T, assembly string) int64 {
	t.Helper()

	prog, err := asm.Link(assembly)
	if err != nil {
		t.Fatalf("linking failed: %v\n%s", err, assembly)
	}
	machine := vm.NewVM(prog)
	if err := machine.Run(); err != nil {
		t.Fatalf("execution failed: %v\n%s", err, assembly)
	}
	return machine.Regs[vm.RegEAX]
}

func runProgram(t *testing.T, source string) int64 {
	t.Helper()
	assembly, warnings := compile(t, source)
	be.Equal(t, warnings, 0)
	return execute(t, assembly)
}

func TestSingleFunctionProgram(t *testing.T) {
	// Without a main the sole function starts at instruction zero; its
	// final ret unwinds past the seeded stack and halts the machine.
	got := runProgram(t, `
int f() {
	int a = 1;
	int b = 2;
	return a + b;
}
`)
	be.Equal(t, got, int64(3))
}

func TestFunctionCallReturnsValue(t *testing.T) {
	got := runProgram(t, `
int f() { return 3; }
int main() { return f(); }
`)
	be.Equal(t, got, int64(3))
}

func TestBothBranchesReturn(t *testing.T) {
	got := runProgram(t, `
int main() {
	int x = 1;
	if (x == 1) { return 10; } else { return 20; }
}
`)
	be.Equal(t, got, int64(10))
}

func TestForLoopSum(t *testing.T) {
	got := runProgram(t, `
int main() {
	int s = 0;
	for (int i = 0; i < 3; i = i + 1) {
		s = s + i;
	}
	return s;
}
`)
	be.Equal(t, got, int64(3))
}

func TestShadowingInnerWins(t *testing.T) {
	got := runProgram(t, `
int main() {
	int x = 0;
	{
		int x = 1;
		return x;
	}
}
`)
	be.Equal(t, got, int64(1))
}

func TestShadowingByDeclarationOrder(t *testing.T) {
	// y reads the outer x because the inner x is not yet declared.
	got := runProgram(t, `
int main() {
	int x = 2;
	{
		int y = x;
		int x = 1;
		return y * 10 + x;
	}
}
`)
	be.Equal(t, got, int64(21))
}

func TestCompilationDeterministic(t *testing.T) {
	source := `
int fib(int n) {
	if (n < 2) { return n; }
	return fib(n - 1) + fib(n - 2);
}
int main() { return fib(10); }
`
	assembly, warnings := compile(t, source)
	be.Equal(t, warnings, 0)
	fingerprint := xxhash.Sum64String(assembly)

	for i := 0; i < 5; i++ {
		again, _ := compile(t, source)
		be.Equal(t, xxhash.Sum64String(again), fingerprint)
	}
	be.Equal(t, execute(t, assembly), int64(55))
}

func TestWhileLoop(t *testing.T) {
	got := runProgram(t, `
int main() {
	int i = 0;
	int acc = 0;
	while (i < 5) {
		acc = acc + i * i;
		i = i + 1;
	}
	return acc;
}
`)
	be.Equal(t, got, int64(30)) // 0+1+4+9+16
}

func TestBreakAndContinue(t *testing.T) {
	got := runProgram(t, `
int main() {
	int s = 0;
	for (int i = 0; i < 10; i = i + 1) {
		if (i == 3) { continue; }
		if (i == 6) { break; }
		s = s + i;
	}
	return s;
}
`)
	be.Equal(t, got, int64(12)) // 0+1+2+4+5
}

func TestNestedScopesUnwind(t *testing.T) {
	got := runProgram(t, `
int main() {
	int total = 0;
	{
		int a = 1;
		{
			int b = 2;
			total = a + b;
		}
	}
	{
		int c = 4;
		total = total + c;
	}
	return total;
}
`)
	be.Equal(t, got, int64(7))
}

func TestLoopScopeDistinctFromBody(t *testing.T) {
	// The loop variable survives across iterations while body locals are
	// re-created every pass.
	got := runProgram(t, `
int main() {
	int s = 0;
	for (int i = 1; i <= 3; i = i + 1) {
		int doubled = i * 2;
		s = s + doubled;
	}
	return s;
}
`)
	be.Equal(t, got, int64(12)) // 2+4+6
}

func TestRecursionWithArguments(t *testing.T) {
	got := runProgram(t, `
int pow(int base, int exp) {
	if (exp == 0) { return 1; }
	return base * pow(base, exp - 1);
}
int main() { return pow(3, 4); }
`)
	be.Equal(t, got, int64(81))
}

func TestUnaryOperators(t *testing.T) {
	got := runProgram(t, `
int main() {
	int x = -5;
	int y = !0;
	int z = !7;
	return x + y * 100 + z;
}
`)
	be.Equal(t, got, int64(95)) // -5 + 100 + 0
}

func TestDivisionAndPrecedence(t *testing.T) {
	got := runProgram(t, `
int main() { return (20 - 2) / 3 + 2 * 5; }
`)
	be.Equal(t, got, int64(16))
}

func TestUndeclaredVariableReadsZero(t *testing.T) {
	assembly, warnings := compile(t, `
int main() { return ghost + 40; }
`)
	be.True(t, warnings > 0)
	be.Equal(t, execute(t, assembly), int64(40))
}

func TestEmptyFunctionBodyReturnsZero(t *testing.T) {
	got := runProgram(t, `int main() { }`)
	be.Equal(t, got, int64(0))
}
