// Package codegen is the tree-walking code generator: it visits a
// pkg/ast.Program and emits into a pkg/irbuilder.Module. The visitor shape —
// a struct carrying a mutable insertion point and a symbol table, copied
// into a child whenever a nested lexical scope is entered — is the Go
// rendition of original_source/src/lib/codegen.cpp's ast_codegen, the same
// way pkg/jack/lowering.go's Lowerer walks a jack.Program.
package codegen

import (
	"fmt"
	"os"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/drivehappy/mhc/pkg/ast"
	"github.com/drivehappy/mhc/pkg/irbuilder"
)

// Generator holds the state a single function's emission needs: the module
// every function is declared into, the builder tracking the current
// insertion point, the function currently being emitted, and the active
// lexical scope. failed is shared across every Generator derived from the
// same Generate call (via Child): an unresolved identifier or call prints a
// diagnostic and sets it rather than unwinding the visitor, so one bad
// reference doesn't stop the rest of the program from being reported too.
type Generator struct {
	module  *irbuilder.Module
	builder *irbuilder.Builder
	fn      *ir.Func
	scope   Scope
	labels  *uint
	failed  *bool
}

// NewGenerator returns a Generator ready to emit functions into module.
func NewGenerator(module *irbuilder.Module) *Generator {
	return &Generator{module: module, builder: irbuilder.NewBuilder(), labels: new(uint), failed: new(bool)}
}

// Generate declares every function in program first (so forward references
// across functions resolve regardless of source order), then emits each
// function body in turn. An unresolved identifier or call within a function
// does not abort emission of the rest of the program: it is reported as a
// diagnostic and papered over with a placeholder value, and Generate only
// reports failure once every function has had a chance to emit. A
// structural error (a malformed tree, an unsupported operator) still aborts
// immediately, since there is no sensible placeholder to paper over it with.
func Generate(module *irbuilder.Module, program *ast.Program) error {
	for _, fn := range program.Functions {
		module.DeclareFn(fn.Name, len(fn.Params))
	}

	g := NewGenerator(module)
	for _, fn := range program.Functions {
		if err := g.HandleFunction(fn); err != nil {
			return fmt.Errorf("error generating function %q: %w", fn.Name, err)
		}
	}

	if *g.failed {
		return fmt.Errorf("code generation failed, see diagnostics above")
	}
	return nil
}

// Child returns a Generator sharing this one's module, builder, and current
// function, but with its own symbol-table snapshot: writes to the child's
// scope never leak back into the parent's. This is what gives if/else/while
// bodies and the function body itself lexical scoping without a stack of
// tables.
func (g *Generator) Child() *Generator {
	child := *g
	child.scope = g.scope.Child()
	return &child
}

func (g *Generator) nextLabel(prefix string) string {
	n := *g.labels
	*g.labels++
	return fmt.Sprintf("%s_%d", prefix, n)
}

// HandleFunction declares (or retrieves) the function, sets up the return
// slot and return block, binds parameters, emits decls then body through a
// child visitor, then closes out with the single return block.
func (g *Generator) HandleFunction(node *ast.Function) error {
	irFn := g.module.DeclareFn(node.Name, len(node.Params))
	g.fn = irFn
	g.scope = newScope(node.Name)

	entry := irbuilder.NewEntryBlock(irFn)
	g.builder.SetInsertPoint(entry)

	retvalPtr := irbuilder.AllocaAtEntry(irFn, mangle(node.Name, retvalKey))
	g.builder.StoreI64(irbuilder.ConstI64(0), retvalPtr)
	g.scope.setRetval(retvalPtr)

	retBlock := irbuilder.NewBlock(irFn, "retval")
	g.scope.setRetvalBlock(retBlock)

	for i, param := range node.Params {
		g.scope.bindValue(param, irFn.Params[i])
	}

	child := g.Child()

	for _, decl := range node.Decls {
		if err := child.handleDecl(decl); err != nil {
			return err
		}
	}

	terminated := false
	for _, stmt := range node.Body {
		if terminated {
			break
		}
		t, err := child.handleStmt(stmt)
		if err != nil {
			return err
		}
		terminated = t
	}

	if !terminated {
		g.builder.Br(retBlock)
	}

	irbuilder.Attach(retBlock)
	g.builder.SetInsertPoint(retBlock)
	g.builder.Ret(g.builder.LoadI64(retvalPtr))

	return nil
}

func (g *Generator) handleDecl(decl *ast.Decl) error {
	ptr := irbuilder.AllocaAtEntry(g.fn, mangle(g.scope.funcName, decl.Name))

	if decl.Init != nil {
		v, err := g.handleExpr(decl.Init)
		if err != nil {
			return fmt.Errorf("error handling decl %q: %w", decl.Name, err)
		}
		g.builder.StoreI64(g.derefIfPointer(v), ptr)
	} else {
		g.builder.StoreI64(irbuilder.ConstI64(0), ptr)
	}

	g.scope.bindValue(decl.Name, ptr)
	return nil
}

func (g *Generator) handleAssign(node *ast.Assign) error {
	ptr, ok := g.scope.lookupValue(node.Name)
	if !ok {
		fmt.Fprintf(os.Stderr, "ERROR: could not find symbol: %q\n", node.Name)
		*g.failed = true
		return nil
	}

	v, err := g.handleExpr(node.RHS)
	if err != nil {
		return fmt.Errorf("error handling assignment to %q: %w", node.Name, err)
	}

	g.builder.StoreI64(g.derefIfPointer(v), ptr)
	return nil
}

func (g *Generator) handleReturn(node *ast.Return) error {
	v := value.Value(irbuilder.ConstI64(0))
	if node.Value != nil {
		val, err := g.handleExpr(node.Value)
		if err != nil {
			return fmt.Errorf("error handling return value: %w", err)
		}
		v = g.derefIfPointer(val)
	}

	retvalPtr, ok := g.scope.retval()
	if !ok {
		return fmt.Errorf("internal error: no return slot bound in scope")
	}
	g.builder.StoreI64(v, retvalPtr)

	retBlock, ok := g.scope.retvalBlock()
	if !ok {
		return fmt.Errorf("internal error: no return block bound in scope")
	}
	g.builder.Br(retBlock)
	return nil
}

// handleStmt emits one statement and reports whether it produced a
// terminator (a branch or return), so callers can stop emitting the rest of
// the enclosing block, per the per-statement early termination rule.
func (g *Generator) handleStmt(stmt ast.Node) (bool, error) {
	switch n := stmt.(type) {
	case *ast.Decl:
		return false, g.handleDecl(n)
	case *ast.Assign:
		return false, g.handleAssign(n)
	case *ast.Call:
		_, err := g.handleCall(n)
		return false, err
	case *ast.If:
		return g.handleIf(n)
	case *ast.While:
		return g.handleWhile(n)
	case *ast.Return:
		return true, g.handleReturn(n)
	default:
		return false, fmt.Errorf("unrecognized statement node %T", stmt)
	}
}

// emitBlock fills block with stmts through a fresh child scope, returning
// whether the block ended in a terminator.
func (g *Generator) emitBlock(block *ir.Block, stmts []ast.Node) (bool, error) {
	g.builder.SetInsertPoint(block)
	child := g.Child()

	terminated := false
	for _, stmt := range stmts {
		if terminated {
			break
		}
		t, err := child.handleStmt(stmt)
		if err != nil {
			return false, err
		}
		terminated = t
	}
	return terminated, nil
}

// handleIf implements the three-block if/else pattern: merge is attached
// only when at least one arm falls through.
func (g *Generator) handleIf(node *ast.If) (bool, error) {
	cond, err := g.handleExpr(node.Cond)
	if err != nil {
		return false, fmt.Errorf("error handling if condition: %w", err)
	}

	thenBlock := irbuilder.NewBlock(g.fn, g.nextLabel("then"))
	elseBlock := irbuilder.NewBlock(g.fn, g.nextLabel("else"))
	g.builder.CondBr(cond, thenBlock, elseBlock)
	irbuilder.Attach(thenBlock)
	irbuilder.Attach(elseBlock)

	thenTerminated, err := g.emitBlock(thenBlock, node.Then)
	if err != nil {
		return false, fmt.Errorf("error handling 'then' branch: %w", err)
	}
	thenEnd := g.builder.InsertPoint()
	elseTerminated, err := g.emitBlock(elseBlock, node.Else)
	if err != nil {
		return false, fmt.Errorf("error handling 'else' branch: %w", err)
	}
	elseEnd := g.builder.InsertPoint()

	if thenTerminated && elseTerminated {
		return true, nil
	}

	mergeBlock := irbuilder.NewBlock(g.fn, g.nextLabel("merge"))
	irbuilder.Attach(mergeBlock)

	if !thenTerminated {
		g.builder.SetInsertPoint(thenEnd)
		g.builder.Br(mergeBlock)
	}
	if !elseTerminated {
		g.builder.SetInsertPoint(elseEnd)
		g.builder.Br(mergeBlock)
	}

	g.builder.SetInsertPoint(mergeBlock)
	return false, nil
}

// handleWhile implements the three-block while pattern: cond, body, after,
// with the current block branching unconditionally into cond.
func (g *Generator) handleWhile(node *ast.While) (bool, error) {
	condBlock := irbuilder.NewBlock(g.fn, g.nextLabel("cond"))
	bodyBlock := irbuilder.NewBlock(g.fn, g.nextLabel("loop"))
	afterBlock := irbuilder.NewBlock(g.fn, g.nextLabel("after"))

	g.builder.Br(condBlock)
	irbuilder.Attach(condBlock)

	g.builder.SetInsertPoint(condBlock)
	cond, err := g.handleExpr(node.Cond)
	if err != nil {
		return false, fmt.Errorf("error handling while condition: %w", err)
	}
	g.builder.CondBr(cond, bodyBlock, afterBlock)

	irbuilder.Attach(bodyBlock)
	bodyTerminated, err := g.emitBlock(bodyBlock, node.Body)
	if err != nil {
		return false, fmt.Errorf("error handling while body: %w", err)
	}
	if !bodyTerminated {
		// The body may have moved the insertion point into blocks of its
		// own (a nested if or while); the back edge leaves from wherever
		// it ended.
		g.builder.Br(condBlock)
	}

	irbuilder.Attach(afterBlock)
	g.builder.SetInsertPoint(afterBlock)
	return false, nil
}

func (g *Generator) handleCall(node *ast.Call) (value.Value, error) {
	callee, ok := g.module.LookupFn(node.Callee)
	if !ok {
		fmt.Fprintf(os.Stderr, "ERROR: could not find function definition for %q\n", node.Callee)
		*g.failed = true
		return irbuilder.ConstI64(0), nil
	}
	if len(callee.Params) != len(node.Args) {
		fmt.Fprintf(os.Stderr, "ERROR: function %q expected %d argument(s), got %d\n", node.Callee, len(callee.Params), len(node.Args))
		*g.failed = true
		return irbuilder.ConstI64(0), nil
	}

	args := make([]value.Value, len(node.Args))
	for i, argNode := range node.Args {
		v, err := g.handleExpr(argNode)
		if err != nil {
			return nil, fmt.Errorf("error handling argument %d of call to %q: %w", i, node.Callee, err)
		}
		args[i] = g.derefIfPointer(v)
	}

	return g.builder.Call(callee, args...), nil
}

// handleExpr dispatches any expression-producing node to its handler.
func (g *Generator) handleExpr(node ast.Node) (value.Value, error) {
	switch n := node.(type) {
	case *ast.BinaryOp:
		return g.handleBinaryOp(n)
	case *ast.Atom:
		return g.handleAtom(n)
	case *ast.Call:
		return g.handleCall(n)
	default:
		return nil, fmt.Errorf("unrecognized expression node %T", node)
	}
}

// handleBinaryOp evaluates the LHS, then folds in each (op, rhs) pair
// strictly left to right: no precedence climbing.
func (g *Generator) handleBinaryOp(node *ast.BinaryOp) (value.Value, error) {
	lhs, err := g.handleExpr(node.Lhs)
	if err != nil {
		return nil, err
	}

	for _, op := range node.Ops {
		rhs, err := g.handleExpr(op.RHS)
		if err != nil {
			return nil, err
		}
		lhs, err = g.builder.Bin(op.Operator, lhs, rhs)
		if err != nil {
			return nil, fmt.Errorf("error emitting operator %q: %w", op.Operator, err)
		}
	}

	return lhs, nil
}

// handleAtom implements the identifier-load algorithm: symbol lookup first,
// numeric-literal fallback second. An identifier that is neither bound nor
// numeric is reported as a diagnostic and stands in as zero, rather than
// aborting the function being emitted.
func (g *Generator) handleAtom(atom *ast.Atom) (value.Value, error) {
	if v, ok := g.scope.lookupValue(atom.Text); ok {
		return g.derefIfPointer(v), nil
	}

	if isAllDigits(atom.Text) {
		n, err := strconv.ParseInt(atom.Text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %q: %w", atom.Text, err)
		}
		return irbuilder.ConstI64(n), nil
	}

	fmt.Fprintf(os.Stderr, "ERROR: could not find symbol: %q\n", atom.Text)
	*g.failed = true
	return irbuilder.ConstI64(0), nil
}

func (g *Generator) derefIfPointer(v value.Value) value.Value {
	if isPointer(v) {
		return g.builder.LoadI64(v)
	}
	return v
}

func isPointer(v value.Value) bool {
	_, ok := v.Type().(*types.PointerType)
	return ok
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
