// Package parser implements the marklar grammar on top of goparsec parser
// combinators, following the same two-phase split as pkg/vm and pkg/jack in
// the nand2tetris toolchain this module descends from: FromSource turns raw
// bytes into a generic, queryable parse tree; FromAST walks that tree into
// the strongly-typed nodes in pkg/ast.
package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	pc "github.com/prataprc/goparsec"

	"github.com/drivehappy/mhc/pkg/ast"
)

var tree = pc.NewAST("marklar_program", 0)

// ----------------------------------------------------------------------------
// Tokens

var (
	pIdent = pc.Token(`[A-Za-z_][A-Za-z0-9_]*`, "IDENT")

	pMarklarKw = pc.Atom("marklar", "MARKLAR")
	pReturnKw  = pc.Atom("return", "RETURN")
	pIfKw      = pc.Atom("if", "IF")
	pElseKw    = pc.Atom("else", "ELSE")
	pWhileKw   = pc.Atom("while", "WHILE")

	pLParen = pc.Atom("(", "LPAREN")
	pRParen = pc.Atom(")", "RPAREN")
	pLBrace = pc.Atom("{", "LBRACE")
	pRBrace = pc.Atom("}", "RBRACE")
	pSemi   = pc.Atom(";", "SEMI")
	pComma  = pc.Atom(",", "COMMA")
	pEquals = pc.Atom("=", "EQUALS")

	// Block comments, matched the same non-greedy way pkg/jack's pComment
	// does: one token covering the whole "/* ... */" span, closing-delimiter
	// required, so an unterminated comment is a parse failure rather than
	// silently consuming the rest of the file.
	pComment = tree.And("comment", nil,
		pc.Token(`/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`, "COMMENT"),
	)

	// Longest-match-first: two-character operators must be tried before the
	// single-character operator they begin with ("&&" before "&", etc.).
	pOp = tree.OrdChoice("op", nil,
		pc.Atom(">>", "SHR"), pc.Atom("<<", "SHL"),
		pc.Atom(">=", "GE"), pc.Atom("<=", "LE"),
		pc.Atom("!=", "NE"), pc.Atom("==", "EQ"),
		pc.Atom("||", "LOR"), pc.Atom("&&", "LAND"),
		pc.Atom("+", "ADD"), pc.Atom("-", "SUB"),
		pc.Atom("*", "MUL"), pc.Atom("/", "DIV"), pc.Atom("%", "REM"),
		pc.Atom("<", "LT"), pc.Atom(">", "GT"), pc.Atom("&", "BAND"),
	)
)

// ----------------------------------------------------------------------------
// Grammar. pStmt and pFactor are mutually/self recursive (a statement block
// can hold further if/while statements; a parenthesized factor holds a full
// op_expr), so both are declared here and wired up in init() rather than in
// this var block, sidestepping Go's initialization-cycle check.
var (
	pProgram pc.Parser
	pFunc    pc.Parser
	pParam   pc.Parser
	pDecl    pc.Parser
	pAssign  pc.Parser
	pRetStmt pc.Parser
	pIfStmt  pc.Parser
	pWhile   pc.Parser
	pCall    pc.Parser
	pOpExpr  pc.Parser
	pFactor  pc.Parser
	pStmt    pc.Parser
	pValue   pc.Parser
)

func init() {
	pValue = tree.OrdChoice("value", nil, pIdent, pc.Int())

	// call := ident "(" (op_expr ("," op_expr)*)? ")"
	pCall = tree.And("call", nil, pIdent, pLParen,
		tree.Kleene("call_args", nil, refOpExpr, pComma),
		pRParen,
	)

	// factor := "(" op_expr ")" | call | value
	pFactor = tree.OrdChoice("factor", nil,
		tree.And("paren_expr", nil, pLParen, refOpExpr, pRParen),
		pCall,
		pValue,
	)

	// op_expr := factor (op factor)*
	pOpExpr = tree.And("op_expr", nil, pFactor,
		tree.Kleene("op_tail", nil, tree.And("op_pair", nil, pOp, pFactor)),
	)

	// decl := "marklar" ident ("=" (op_expr | value))? ";"
	pDecl = tree.And("decl", nil, pMarklarKw, pIdent,
		pc.Maybe(nil, tree.And("decl_init", nil, pEquals, pOpExpr)),
		pSemi,
	)

	// assign := ident "=" (op_expr | value) ";"
	pAssign = tree.And("assign", nil, pIdent, pEquals, pOpExpr, pSemi)

	// return_stmt := "return" (call | op_expr | value) ";"
	pRetStmt = tree.And("return_stmt", nil, pReturnKw, pc.Maybe(nil, pOpExpr), pSemi)

	// if_stmt := "if" "(" op_expr ")" "{" stmt* "}" ("else" "{" stmt* "}")?
	pIfStmt = tree.And("if_stmt", nil,
		pIfKw, pLParen, pOpExpr, pRParen,
		pLBrace, tree.Kleene("then_body", nil, refStmt), pRBrace,
		pc.Maybe(nil, tree.And("else_branch", nil, pElseKw, pLBrace,
			tree.Kleene("else_body", nil, refStmt), pRBrace)),
	)

	// while_stmt := "while" "(" op_expr ")" "{" stmt* "}"
	pWhile = tree.And("while_stmt", nil,
		pWhileKw, pLParen, pOpExpr, pRParen,
		pLBrace, tree.Kleene("while_body", nil, refStmt), pRBrace,
	)

	// stmt := comment | (call ";") | if_stmt | while_stmt | decl | assign
	//         | return_stmt
	pStmt = tree.OrdChoice("stmt", nil,
		pComment,
		tree.And("call_stmt", nil, pCall, pSemi),
		pIfStmt, pWhile, pDecl, pAssign, pRetStmt,
	)

	// param := "marklar" ident
	pParam = tree.And("param", nil, pMarklarKw, pIdent)

	// function := "marklar" ident "(" (param ("," param)*)? ")"
	//             "{" decl* stmt* return_stmt? "}"
	pFunc = tree.And("function", nil,
		pMarklarKw, pIdent, pLParen, tree.Kleene("params", nil, pParam, pComma), pRParen,
		pLBrace,
		tree.Kleene("decls", nil, tree.OrdChoice("decl_or_comment", nil, pComment, pDecl)),
		tree.Kleene("body", nil, pStmt),
		pc.Maybe(nil, pRetStmt),
		pRBrace,
	)

	// program := (comment | function)+ EOF
	pProgram = tree.ManyUntil("program", nil,
		tree.OrdChoice("top_level", nil, pComment, pFunc),
		pc.End(),
	)
}

func refOpExpr(s pc.Scanner) (pc.ParsecNode, pc.Scanner) { return pOpExpr(s) }
func refStmt(s pc.Scanner) (pc.ParsecNode, pc.Scanner)   { return pStmt(s) }

// ----------------------------------------------------------------------------
// Parser

// Parser turns marklar source text into pkg/ast nodes. Debug behavior mirrors
// the teacher's own parsers: PARSEC_DEBUG enables goparsec's verbose trace,
// EXPORT_AST dumps a Graphviz rendering, PRINT_AST pretty-prints the raw tree.
type Parser struct{ reader io.Reader }

// NewParser wraps an io.Reader positioned at the start of marklar source.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parse reads the whole input and returns the parsed Program, or an error if
// either the grammar rejected the input or the AST walk found a malformed
// tree shape.
func (p *Parser) Parse() (*ast.Program, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read input: %w", err)
	}

	root, ok := p.FromSource(content)
	if !ok {
		return nil, fmt.Errorf("failed to parse source as marklar program")
	}

	return p.FromAST(root)
}

// FromSource runs the grammar over source and returns the raw, queryable
// parse tree. ok is false when the grammar did not consume the whole input
// (trailing garbage is a parse failure, per the end-of-input anchor in
// pProgram).
func (p *Parser) FromSource(source []byte) (pc.Queryable, bool) {
	if os.Getenv("PARSEC_DEBUG") != "" {
		tree.SetDebug()
	}

	root, _ := tree.Parsewith(pProgram, pc.NewScanner(source))

	if os.Getenv("EXPORT_AST") != "" {
		file, err := os.Create(fmt.Sprintf("%s/debug.ast.dot", os.Getenv("DEBUG_FOLDER")))
		if err == nil {
			defer file.Close()
			file.Write([]byte(tree.Dotstring("\"marklar AST\"")))
		}
	}
	if os.Getenv("PRINT_AST") != "" {
		tree.Prettyprint()
	}

	// Unlike the teacher's own parsers (which hardcode success once root is
	// non-nil, see pkg/jack/parsing.go's TODO), pProgram's pc.End() terminator
	// inside ManyUntil means a non-nil root already implies the whole input,
	// trailing garbage included, was accounted for.
	return root, root != nil
}

// FromAST walks the generic parse tree produced by FromSource into an
// *ast.Program, the same dispatch-on-GetName shape pkg/vm/parsing.go uses.
func (p *Parser) FromAST(root pc.Queryable) (*ast.Program, error) {
	if root.GetName() != "program" {
		return nil, fmt.Errorf("expected root node 'program', got %q", root.GetName())
	}

	program := &ast.Program{}
	for _, child := range root.GetChildren() {
		if child.GetName() != "function" {
			continue
		}
		fn, err := p.handleFunction(child)
		if err != nil {
			return nil, err
		}
		program.Functions = append(program.Functions, fn)
	}

	return program, nil
}

func (p *Parser) handleFunction(node pc.Queryable) (*ast.Function, error) {
	children := node.GetChildren()
	if len(children) < 2 {
		return nil, fmt.Errorf("malformed 'function' node: expected at least 2 children, got %d", len(children))
	}

	fn := &ast.Function{Name: children[1].GetValue()}

	for _, child := range children {
		switch child.GetName() {
		case "params":
			for _, paramNode := range child.GetChildren() {
				if paramNode.GetName() != "param" {
					continue
				}
				pchildren := paramNode.GetChildren()
				if len(pchildren) != 2 {
					return nil, fmt.Errorf("malformed 'param' node: expected 2 children, got %d", len(pchildren))
				}
				fn.Params = append(fn.Params, pchildren[1].GetValue())
			}

		case "decls":
			for _, declNode := range child.GetChildren() {
				if declNode.GetName() != "decl" {
					continue
				}
				decl, err := p.handleDecl(declNode)
				if err != nil {
					return nil, err
				}
				fn.Decls = append(fn.Decls, decl)
			}

		case "body":
			for _, stmtNode := range child.GetChildren() {
				stmt, err := p.handleStmt(stmtNode)
				if err != nil {
					return nil, err
				}
				if stmt != nil {
					fn.Body = append(fn.Body, stmt)
				}
			}

		case "return_stmt":
			ret, err := p.handleReturn(child)
			if err != nil {
				return nil, err
			}
			fn.Body = append(fn.Body, ret)
		}
	}

	return fn, nil
}

func (p *Parser) handleStmt(node pc.Queryable) (ast.Node, error) {
	switch node.GetName() {
	case "call_stmt":
		children := node.GetChildren()
		if len(children) == 0 {
			return nil, fmt.Errorf("malformed 'call_stmt' node: no children")
		}
		return p.handleCall(children[0])
	case "if_stmt":
		return p.handleIf(node)
	case "while_stmt":
		return p.handleWhile(node)
	case "decl":
		return p.handleDecl(node)
	case "assign":
		return p.handleAssign(node)
	case "return_stmt":
		return p.handleReturn(node)
	case "comment":
		return nil, nil
	default:
		return nil, fmt.Errorf("unrecognized statement node %q", node.GetName())
	}
}

func (p *Parser) handleDecl(node pc.Queryable) (*ast.Decl, error) {
	children := node.GetChildren()
	if len(children) < 2 {
		return nil, fmt.Errorf("malformed 'decl' node: expected at least 2 children, got %d", len(children))
	}

	decl := &ast.Decl{Name: children[1].GetValue()}
	for _, child := range children {
		if child.GetName() != "decl_init" {
			continue
		}
		initChildren := child.GetChildren()
		if len(initChildren) != 2 {
			return nil, fmt.Errorf("malformed 'decl_init' node: expected 2 children, got %d", len(initChildren))
		}
		init, err := p.handleOpExpr(initChildren[1])
		if err != nil {
			return nil, err
		}
		decl.Init = init
	}

	return decl, nil
}

func (p *Parser) handleAssign(node pc.Queryable) (*ast.Assign, error) {
	children := node.GetChildren()
	if len(children) != 4 {
		return nil, fmt.Errorf("malformed 'assign' node: expected 4 children, got %d", len(children))
	}

	rhs, err := p.handleOpExpr(children[2])
	if err != nil {
		return nil, err
	}

	return &ast.Assign{Name: children[0].GetValue(), RHS: rhs}, nil
}

func (p *Parser) handleReturn(node pc.Queryable) (*ast.Return, error) {
	children := node.GetChildren()
	if len(children) == 0 {
		return nil, fmt.Errorf("malformed 'return_stmt' node: no children")
	}

	ret := &ast.Return{}
	// children[0] is the "return" keyword leaf; an optional op_expr, if
	// present, is whichever remaining child is not the trailing semicolon.
	for _, child := range children[1:] {
		if child.GetName() == "op_expr" {
			val, err := p.handleOpExpr(child)
			if err != nil {
				return nil, err
			}
			ret.Value = val
		}
	}

	return ret, nil
}

func (p *Parser) handleIf(node pc.Queryable) (*ast.If, error) {
	children := node.GetChildren()
	stmt := &ast.If{}

	for i, child := range children {
		switch child.GetName() {
		case "op_expr":
			cond, err := p.handleOpExpr(child)
			if err != nil {
				return nil, err
			}
			stmt.Cond = cond
		case "then_body":
			for _, s := range child.GetChildren() {
				n, err := p.handleStmt(s)
				if err != nil {
					return nil, err
				}
				if n != nil {
					stmt.Then = append(stmt.Then, n)
				}
			}
		case "else_branch":
			for _, s := range child.GetChildren() {
				if s.GetName() != "else_body" {
					continue
				}
				for _, elseStmt := range s.GetChildren() {
					n, err := p.handleStmt(elseStmt)
					if err != nil {
						return nil, err
					}
					if n != nil {
						stmt.Else = append(stmt.Else, n)
					}
				}
			}
		default:
			_ = i
		}
	}

	return stmt, nil
}

func (p *Parser) handleWhile(node pc.Queryable) (*ast.While, error) {
	children := node.GetChildren()
	stmt := &ast.While{}

	for _, child := range children {
		switch child.GetName() {
		case "op_expr":
			cond, err := p.handleOpExpr(child)
			if err != nil {
				return nil, err
			}
			stmt.Cond = cond
		case "while_body":
			for _, s := range child.GetChildren() {
				n, err := p.handleStmt(s)
				if err != nil {
					return nil, err
				}
				if n != nil {
					stmt.Body = append(stmt.Body, n)
				}
			}
		}
	}

	return stmt, nil
}

func (p *Parser) handleCall(node pc.Queryable) (*ast.Call, error) {
	if node.GetName() != "call" {
		return nil, fmt.Errorf("expected node 'call', got %q", node.GetName())
	}
	children := node.GetChildren()
	if len(children) == 0 {
		return nil, fmt.Errorf("malformed 'call' node: no children")
	}

	call := &ast.Call{Callee: children[0].GetValue()}
	for _, child := range children {
		if child.GetName() != "call_args" {
			continue
		}
		for _, argNode := range child.GetChildren() {
			arg, err := p.handleOpExpr(argNode)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
	}

	return call, nil
}

func (p *Parser) handleOpExpr(node pc.Queryable) (*ast.BinaryOp, error) {
	if node.GetName() != "op_expr" {
		return nil, fmt.Errorf("expected node 'op_expr', got %q", node.GetName())
	}
	children := node.GetChildren()
	if len(children) == 0 {
		return nil, fmt.Errorf("malformed 'op_expr' node: no children")
	}

	lhs, err := p.handleFactor(children[0])
	if err != nil {
		return nil, err
	}
	bin := &ast.BinaryOp{Lhs: lhs}

	for _, child := range children[1:] {
		if child.GetName() != "op_tail" {
			continue
		}
		for _, pairNode := range child.GetChildren() {
			if pairNode.GetName() != "op_pair" {
				continue
			}
			pairChildren := pairNode.GetChildren()
			if len(pairChildren) != 2 {
				return nil, fmt.Errorf("malformed 'op_pair' node: expected 2 children, got %d", len(pairChildren))
			}
			rhs, err := p.handleFactor(pairChildren[1])
			if err != nil {
				return nil, err
			}
			bin.Ops = append(bin.Ops, ast.Op{Operator: pairChildren[0].GetValue(), RHS: rhs})
		}
	}

	return bin, nil
}

func (p *Parser) handleFactor(node pc.Queryable) (ast.Node, error) {
	switch node.GetName() {
	case "paren_expr":
		children := node.GetChildren()
		if len(children) != 3 {
			return nil, fmt.Errorf("malformed 'paren_expr' node: expected 3 children, got %d", len(children))
		}
		return p.handleOpExpr(children[1])
	case "call":
		return p.handleCall(node)
	case "IDENT", "INT":
		return &ast.Atom{Text: strings.TrimSpace(node.GetValue())}, nil
	default:
		return nil, fmt.Errorf("unrecognized factor node %q", node.GetName())
	}
}
