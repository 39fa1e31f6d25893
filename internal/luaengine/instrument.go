package luaengine

import (
	"strconv"

	"github.com/yuin/gopher-lua/ast"
)

// traceFunc is the global called before every traced line.
const traceFunc = "__trace__"

// Instrument inserts a call to __trace__(line) before the first statement of
// every line, in the chunk and in every function body it defines. Lines
// holding only else, end or until never start a statement and are not traced.
func Instrument(chunk []ast.Stmt) []ast.Stmt {
	return instrumentBlock(chunk, make(map[int]bool))
}

// instrumentBlock rewrites stmts. seen is shared by all blocks of one
// function body so a line is traced once even if it holds nested blocks.
func instrumentBlock(stmts []ast.Stmt, seen map[int]bool) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts))
	for _, stmt := range stmts {
		if _, isLabel := stmt.(*ast.LabelStmt); !isLabel {
			if line := stmt.Line(); line > 0 && !seen[line] {
				seen[line] = true
				out = append(out, traceCall(line))
			}
		}
		instrumentStmt(stmt, seen)
		out = append(out, stmt)
	}
	return out
}

func traceCall(line int) ast.Stmt {
	fn := &ast.IdentExpr{Value: traceFunc}
	arg := &ast.NumberExpr{Value: strconv.Itoa(line)}
	call := &ast.FuncCallExpr{Func: fn, Args: []ast.Expr{arg}}
	stmt := &ast.FuncCallStmt{Expr: call}
	for _, n := range []interface {
		SetLine(int)
		SetLastLine(int)
	}{fn, arg, call, stmt} {
		n.SetLine(line)
		n.SetLastLine(line)
	}
	return stmt
}

func instrumentStmt(stmt ast.Stmt, seen map[int]bool) {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		instrumentExprs(s.Lhs)
		instrumentExprs(s.Rhs)
	case *ast.LocalAssignStmt:
		instrumentExprs(s.Exprs)
	case *ast.FuncCallStmt:
		instrumentExpr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = instrumentBlock(s.Stmts, seen)
	case *ast.WhileStmt:
		instrumentExpr(s.Condition)
		s.Stmts = instrumentBlock(s.Stmts, seen)
	case *ast.RepeatStmt:
		s.Stmts = instrumentBlock(s.Stmts, seen)
		instrumentExpr(s.Condition)
	case *ast.IfStmt:
		instrumentExpr(s.Condition)
		s.Then = instrumentBlock(s.Then, seen)
		s.Else = instrumentBlock(s.Else, seen)
	case *ast.NumberForStmt:
		instrumentExprs([]ast.Expr{s.Init, s.Limit, s.Step})
		s.Stmts = instrumentBlock(s.Stmts, seen)
	case *ast.GenericForStmt:
		instrumentExprs(s.Exprs)
		s.Stmts = instrumentBlock(s.Stmts, seen)
	case *ast.FuncDefStmt:
		instrumentExpr(s.Func)
	case *ast.ReturnStmt:
		instrumentExprs(s.Exprs)
	}
}

func instrumentExprs(exprs []ast.Expr) {
	for _, e := range exprs {
		instrumentExpr(e)
	}
}

// instrumentExpr finds function bodies nested in expressions.
func instrumentExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.FunctionExpr:
		e.Stmts = instrumentBlock(e.Stmts, make(map[int]bool))
	case *ast.AttrGetExpr:
		instrumentExprs([]ast.Expr{e.Object, e.Key})
	case *ast.TableExpr:
		for _, f := range e.Fields {
			instrumentExprs([]ast.Expr{f.Key, f.Value})
		}
	case *ast.FuncCallExpr:
		instrumentExprs([]ast.Expr{e.Func, e.Receiver})
		instrumentExprs(e.Args)
	case *ast.LogicalOpExpr:
		instrumentExprs([]ast.Expr{e.Lhs, e.Rhs})
	case *ast.RelationalOpExpr:
		instrumentExprs([]ast.Expr{e.Lhs, e.Rhs})
	case *ast.StringConcatOpExpr:
		instrumentExprs([]ast.Expr{e.Lhs, e.Rhs})
	case *ast.ArithmeticOpExpr:
		instrumentExprs([]ast.Expr{e.Lhs, e.Rhs})
	case *ast.UnaryMinusOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryNotOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryLenOpExpr:
		instrumentExpr(e.Expr)
	}
}
