package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"stackcc/pkg/asm"
	"stackcc/pkg/compiler"
	"stackcc/pkg/diag"
	"stackcc/pkg/vm"
)

const testSource = `int main() {
	int x = 10;
	int y = 20;
	return x + y;
}
`

func main() {
	dumpTokens := flag.Bool("dump-tokens", false, "print the token stream and exit")
	dumpAST := flag.Bool("dump-ast", false, "print the annotated AST and exit")
	dumpCFG := flag.Bool("dump-cfg", false, "print the control-flow graphs and exit")
	run := flag.Bool("run", false, "assemble and execute the program, printing eax")
	verbose := flag.Bool("v", false, "print a fingerprint of the generated assembly")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	if *dumpTokens {
		tokens, err := compiler.Lex(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lex error:", err)
			os.Exit(1)
		}
		for _, tok := range tokens {
			fmt.Println(tok)
		}
		return
	}

	stmts, err := compiler.Parse(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}
	stmts = compiler.NewAnnotator().Annotate(stmts)

	if *dumpAST {
		for _, s := range stmts {
			fmt.Println(s)
		}
		return
	}

	graphs := compiler.BuildCFGs(stmts)

	if *dumpCFG {
		for _, g := range graphs {
			fmt.Print(g)
		}
		return
	}

	reporter := diag.NewReporter(os.Stderr)
	code := compiler.GenerateProgram(graphs, reporter)

	if *verbose {
		fmt.Fprintf(os.Stderr, "assembly fingerprint: %016x (%d warnings)\n",
			xxhash.Sum64String(code), reporter.Count())
	}

	if !*run {
		fmt.Print(code)
		return
	}

	prog, err := asm.Link(code)
	if err != nil {
		fmt.Fprintln(os.Stderr, "link error:", err)
		os.Exit(1)
	}
	machine := vm.NewVM(prog)
	if err := machine.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "vm error:", err)
		os.Exit(1)
	}
	fmt.Println(machine.Regs[vm.RegEAX])
}
