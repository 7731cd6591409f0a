package parser_test

import (
	"strings"
	"testing"

	"github.com/drivehappy/mhc/pkg/ast"
	"github.com/drivehappy/mhc/pkg/parser"
)

func parse(t *testing.T, source string) *ast.Program {
	t.Helper()
	p := parser.NewParser(strings.NewReader(source))
	program, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", source, err)
	}
	return program
}

func TestParseAccepts(t *testing.T) {
	test := func(name, source string) {
		t.Run(name, func(t *testing.T) {
			parse(t, source)
		})
	}

	test("empty function body", `marklar main() { }`)

	test("block comment", `
		/* a leading comment */
		marklar main() {
			return 0;
		}
	`)

	test("multiple decls with initializers", `
		marklar main() {
			marklar i = 2;
			marklar j = 5;
			marklar k;
			return i + j;
		}
	`)

	test("chained operators", `
		marklar main() {
			marklar i = 2;
			marklar j = 5;
			return i + j + 6;
		}
	`)

	test("if with else", `
		marklar main() {
			if (3 < 4) {
				return 1;
			} else {
				return 0;
			}
		}
	`)

	test("if without else", `
		marklar main() {
			if (3 < 4) {
				return 1;
			}
		}
	`)

	test("while loop", `
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

	test("call with no arguments", `
		marklar helper() { return 1; }
		marklar main() { return helper(); }
	`)

	test("call with one argument", `
		marklar helper(marklar x) { return x; }
		marklar main() { return helper(1); }
	`)

	test("call with many arguments", `
		marklar add(marklar a, marklar b, marklar c) { return a + b + c; }
		marklar main() { return add(1, 2, 3); }
	`)

	test("nested call inside a condition", `
		marklar helper() { return 1; }
		marklar main() {
			if (helper() < 4) {
				return 1;
			}
			return 0;
		}
	`)

	test("parenthesized sub-expression", `
		marklar main() {
			return (1 + 2) * 3;
		}
	`)
}

func TestParseRejects(t *testing.T) {
	test := func(name, source string) {
		t.Run(name, func(t *testing.T) {
			p := parser.NewParser(strings.NewReader(source))
			if _, err := p.Parse(); err == nil {
				t.Fatalf("expected a parse error for %q, got none", source)
			}
		})
	}

	test("unterminated block comment", `
		/* this comment never ends
		marklar main() { return 0; }
	`)

	test("missing semicolon", `
		marklar main() {
			marklar i = 2
			return i;
		}
	`)

	test("trailing garbage after the last function", `
		marklar main() { return 0; } !!!
	`)

	test("missing marklar keyword before function name", `
		main() { return 0; }
	`)
}

func TestProgramStructure(t *testing.T) {
	program := parse(t, `marklar main() { }`)

	if len(program.Functions) != 1 {
		t.Fatalf("expected exactly 1 function, got %d", len(program.Functions))
	}
	fn := program.Functions[0]
	if fn.Name != "main" {
		t.Errorf("expected function named %q, got %q", "main", fn.Name)
	}
	if len(fn.Params) != 0 || len(fn.Decls) != 0 || len(fn.Body) != 0 {
		t.Errorf("expected an entirely empty function, got %+v", fn)
	}
}

func TestDeclChainStructure(t *testing.T) {
	program := parse(t, `
		marklar main() {
			marklar i = 2;
			marklar j = 5;
			marklar k;
			return i + j;
		}
	`)

	fn := program.Functions[0]
	if len(fn.Decls) != 3 {
		t.Fatalf("expected 3 decls, got %d", len(fn.Decls))
	}

	if fn.Decls[0].Name != "i" || fn.Decls[0].Init == nil {
		t.Errorf("expected decl 'i' with an initializer, got %+v", fn.Decls[0])
	}
	if fn.Decls[1].Name != "j" || fn.Decls[1].Init == nil {
		t.Errorf("expected decl 'j' with an initializer, got %+v", fn.Decls[1])
	}
	if fn.Decls[2].Name != "k" || fn.Decls[2].Init != nil {
		t.Errorf("expected decl 'k' with no initializer, got %+v", fn.Decls[2])
	}

	if len(fn.Body) != 1 {
		t.Fatalf("expected a single return statement in the body, got %d nodes", len(fn.Body))
	}
	ret, ok := fn.Body[0].(*ast.Return)
	if !ok {
		t.Fatalf("expected the sole body statement to be a *ast.Return, got %T", fn.Body[0])
	}
	bin, ok := ret.Value.(*ast.BinaryOp)
	if !ok {
		t.Fatalf("expected the return value to be a *ast.BinaryOp, got %T", ret.Value)
	}
	if len(bin.Ops) != 1 || bin.Ops[0].Operator != "+" {
		t.Errorf("expected a single '+' operator, got %+v", bin.Ops)
	}
}

func TestIfConditionStructure(t *testing.T) {
	program := parse(t, `
		marklar main() {
			marklar i;
			if (i < 4) {
			}
		}
	`)

	fn := program.Functions[0]
	if len(fn.Body) != 1 {
		t.Fatalf("expected a single if statement in the body, got %d nodes", len(fn.Body))
	}
	ifStmt, ok := fn.Body[0].(*ast.If)
	if !ok {
		t.Fatalf("expected the sole body statement to be a *ast.If, got %T", fn.Body[0])
	}

	cond, ok := ifStmt.Cond.(*ast.BinaryOp)
	if !ok {
		t.Fatalf("expected the condition to be a *ast.BinaryOp, got %T", ifStmt.Cond)
	}
	lhs, ok := cond.Lhs.(*ast.Atom)
	if !ok || lhs.Text != "i" {
		t.Errorf("expected the condition's LHS to be atom 'i', got %+v", cond.Lhs)
	}
	if len(cond.Ops) != 1 || cond.Ops[0].Operator != "<" {
		t.Fatalf("expected a single '<' operator, got %+v", cond.Ops)
	}
	rhs, ok := cond.Ops[0].RHS.(*ast.Atom)
	if !ok || rhs.Text != "4" {
		t.Errorf("expected the condition's RHS to be atom '4', got %+v", cond.Ops[0].RHS)
	}

	if len(ifStmt.Then) != 0 || ifStmt.Else != nil {
		t.Errorf("expected an empty 'then' branch and no 'else' branch, got %+v", ifStmt)
	}
}
