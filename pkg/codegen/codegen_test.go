package codegen_test

import (
	"strings"
	"testing"

	"github.com/drivehappy/mhc/pkg/codegen"
	"github.com/drivehappy/mhc/pkg/irbuilder"
	"github.com/drivehappy/mhc/pkg/parser"
)

// generate parses source, runs Generate over it, and returns the resulting
// module. It fails the test on any parse or codegen error, mirroring the
// happy-path assumption every other test in this file relies on.
func generate(t *testing.T, source string) *irbuilder.Module {
	t.Helper()

	p := parser.NewParser(strings.NewReader(source))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	module := irbuilder.NewModule("test")
	if err := codegen.Generate(module, program); err != nil {
		t.Fatalf("unexpected codegen error: %v", err)
	}
	if err := module.Verify(); err != nil {
		t.Fatalf("generated module failed verification: %v", err)
	}

	return module
}

// TestExamplePrograms runs a representative spread of marklar programs
// through the front end and code generator, checking that each produces a
// well-formed module (every block terminated). Running the produced IR
// through opt/llc/gcc and the linked executable is out of reach here, so
// these tests stop at "would this lower to valid IR".
func TestExamplePrograms(t *testing.T) {
	test := func(name, source string) {
		t.Run(name, func(t *testing.T) {
			generate(t, source)
		})
	}

	test("bare literal return", `marklar main() { return 3; }`)

	test("two decls summed", `
		marklar main() {
			marklar i = 2;
			marklar j = 5;
			return i + j;
		}
	`)

	test("chained addition", `
		marklar main() {
			marklar i = 2;
			marklar j = 5;
			return i + j + 6;
		}
	`)

	test("if without else", `
		marklar main() {
			if (3 < 4) {
				return 1;
			}
			return 0;
		}
	`)

	test("while loop summing to 6", `
		marklar main() {
			marklar i = 0;
			marklar sum = 0;
			while (i < 4) {
				sum = sum + i;
				i = i + 1;
			}
			return sum;
		}
	`)

	test("non-short-circuiting or", `
		marklar main() {
			marklar i = 1;
			marklar j = 0;
			if (i || j) {
				return 2;
			}
			return 0;
		}
	`)

	test("nested function calls", `
		marklar unaryFunc(marklar x) {
			return x + 1;
		}
		marklar binaryFunc(marklar a, marklar b) {
			return unaryFunc(a) + unaryFunc(b);
		}
		marklar main() {
			return binaryFunc(10, 15);
		}
	`)
}

// TestFunctionBlockOrder checks the block ordering guarantee for a function
// with an if statement: the entry block comes first and the return block
// comes last, with the if's own blocks in between.
func TestFunctionBlockOrder(t *testing.T) {
	module := generate(t, `
		marklar main() {
			if (1 < 2) {
				return 1;
			}
			return 0;
		}
	`)

	fn, ok := module.LookupFn("main")
	if !ok {
		t.Fatalf("expected function 'main' to be declared")
	}

	if len(fn.Blocks) == 0 {
		t.Fatalf("expected at least one block")
	}
	if fn.Blocks[0].LocalName != "entry" {
		t.Errorf("expected the first block to be 'entry', got %q", fn.Blocks[0].LocalName)
	}
	last := fn.Blocks[len(fn.Blocks)-1]
	if last.LocalName != "retval" {
		t.Errorf("expected the last block to be 'retval', got %q", last.LocalName)
	}
}

// TestForwardCallReference exercises Generate's two-pass declaration: a
// function calling another that is defined later in the same program must
// still resolve.
func TestForwardCallReference(t *testing.T) {
	generate(t, `
		marklar main() {
			return helperDefinedBelow();
		}
		marklar helperDefinedBelow() {
			return 42;
		}
	`)
}

// TestUndefinedIdentifierFails checks the identifier-load algorithm's final
// branch: a name that is neither bound in scope nor all-digits is reported
// as a diagnostic and papered over with a placeholder rather than aborting
// emission, so Generate only fails once the whole program has been walked —
// the function's own blocks still come out fully formed.
func TestUndefinedIdentifierFails(t *testing.T) {
	p := parser.NewParser(strings.NewReader(`
		marklar main() {
			return undeclaredVariable;
		}
	`))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	module := irbuilder.NewModule("test")
	if err := codegen.Generate(module, program); err == nil {
		t.Fatalf("expected an error for an undefined identifier")
	}
	if err := module.Verify(); err != nil {
		t.Fatalf("expected emission to finish the function despite the undefined identifier: %v", err)
	}
}

// TestCallArityMismatchFails checks the Call emission algorithm's arity
// check: calling a two-parameter function with one argument is reported as
// a diagnostic, not an aborted function body.
func TestCallArityMismatchFails(t *testing.T) {
	p := parser.NewParser(strings.NewReader(`
		marklar add(marklar a, marklar b) { return a + b; }
		marklar main() { return add(1); }
	`))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	module := irbuilder.NewModule("test")
	if err := codegen.Generate(module, program); err == nil {
		t.Fatalf("expected an arity-mismatch error")
	}
	if err := module.Verify(); err != nil {
		t.Fatalf("expected emission to finish the function despite the arity mismatch: %v", err)
	}
}

// TestCallToUndefinedFunctionFails checks that calling a name with no
// matching declaration anywhere in the program is reported as a diagnostic
// rather than a silently-emitted external reference or an aborted function.
func TestCallToUndefinedFunctionFails(t *testing.T) {
	p := parser.NewParser(strings.NewReader(`
		marklar main() { return neverDeclared(); }
	`))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	module := irbuilder.NewModule("test")
	if err := codegen.Generate(module, program); err == nil {
		t.Fatalf("expected an error for a call to an undefined function")
	}
	if err := module.Verify(); err != nil {
		t.Fatalf("expected emission to finish the function despite the undefined call: %v", err)
	}
}

// TestErrorsCascadeAcrossFunctions checks that an unresolved reference in one
// function does not stop later functions, or later statements in the same
// function, from being emitted: Generate reports failure only after every
// function has had a chance to lower, matching the "report every error in
// one pass" contract.
func TestErrorsCascadeAcrossFunctions(t *testing.T) {
	p := parser.NewParser(strings.NewReader(`
		marklar broken() {
			marklar result = undeclaredVariable + neverDeclaredCall();
			return result;
		}
		marklar fine() {
			return 42;
		}
	`))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	module := irbuilder.NewModule("test")
	if err := codegen.Generate(module, program); err == nil {
		t.Fatalf("expected an error from the unresolved references in 'broken'")
	}

	if _, ok := module.LookupFn("broken"); !ok {
		t.Fatalf("expected 'broken' to still be declared")
	}
	fineFn, ok := module.LookupFn("fine")
	if !ok {
		t.Fatalf("expected 'fine' to still be emitted after 'broken' failed")
	}
	if len(fineFn.Blocks) == 0 {
		t.Fatalf("expected 'fine' to have been fully lowered despite 'broken' failing first")
	}

	if err := module.Verify(); err != nil {
		t.Fatalf("expected every function's blocks to be well-formed despite the logical errors: %v", err)
	}
}
