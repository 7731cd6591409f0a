package codegen

import (
	"maps"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// retvalKey and retvalBlockKey are the two reserved, unmangled symbol-table
// entries every function scope carries: the pointer to the return-value
// slot and the handle of the function's unique return block.
const (
	retvalKey      = "__retval__"
	retvalBlockKey = "__retval__BB"
)

// Scope is the per-function (and per-nested-block) symbol table. Identifiers
// are keyed by mangle(funcName, ident) so two functions can reuse the same
// local name without collision; lexical scoping of nested if/else/while
// bodies is implemented by copying a Scope rather than pushing/popping a
// stack of tables, mirroring pkg/jack's ScopeTable but via snapshot instead
// of a push/pop stack.
type Scope struct {
	funcName string
	values   map[string]value.Value
	blocks   map[string]*ir.Block
}

func newScope(funcName string) Scope {
	return Scope{funcName: funcName, values: map[string]value.Value{}, blocks: map[string]*ir.Block{}}
}

// Child returns a snapshot of s: the caller's further writes never leak
// back into s, since the underlying maps are cloned, not shared.
func (s Scope) Child() Scope {
	return Scope{funcName: s.funcName, values: maps.Clone(s.values), blocks: maps.Clone(s.blocks)}
}

func mangle(funcName, ident string) string {
	return funcName + "_" + ident
}

func (s Scope) lookupValue(ident string) (value.Value, bool) {
	v, ok := s.values[mangle(s.funcName, ident)]
	return v, ok
}

func (s Scope) bindValue(ident string, v value.Value) {
	s.values[mangle(s.funcName, ident)] = v
}

func (s Scope) retval() (value.Value, bool) {
	v, ok := s.values[retvalKey]
	return v, ok
}

func (s Scope) setRetval(v value.Value) {
	s.values[retvalKey] = v
}

func (s Scope) retvalBlock() (*ir.Block, bool) {
	b, ok := s.blocks[retvalBlockKey]
	return b, ok
}

func (s Scope) setRetvalBlock(b *ir.Block) {
	s.blocks[retvalBlockKey] = b
}
