package runtime

import (
	"fmt"
	"math"

	"barlang/internal/ast"
	"barlang/internal/lower"
	"barlang/internal/stdlib"
)

// breakSignal and continueSignal implement break/continue as a non-local
// exit caught by the nearest enclosing for loop, the same panic/recover
// discipline the parser uses for statement-boundary recovery.
type breakSignal struct{}
type continueSignal struct{}

// env is a single flat variable scope: the top-level script's scope, or one
// function call's parameter scope. The language does not nest scopes inside
// if/for bodies (see the lowering pass), so one map per Execute
// call (or per function call) is sufficient.
type env map[string]Value

type interp struct {
	prog *lower.Program
	ctx  *Context
	env  env
}

// Execute runs prog's body once against ctx. The caller is responsible for
// calling ctx.Plots.FinalizeBar afterward (Feed does this for the common
// external-row-feed path).
func Execute(prog *lower.Program, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*DesyncError); ok {
				err = de
				return
			}
			panic(r)
		}
	}()
	ctx.State.ResetCallCounter()
	it := &interp{prog: prog, ctx: ctx, env: env{}}
	for _, stmt := range prog.Script.Stmts {
		it.execStmt(stmt)
	}
	return nil
}

// Feed applies one external row to ctx: assigns market fields, runs the
// procedure body, finalizes plots, and advances bar_index.
func Feed(prog *lower.Program, ctx *Context, row Row) error {
	ctx.applyRow(row)
	if err := Execute(prog, ctx); err != nil {
		return err
	}
	ctx.Plots.FinalizeBar(ctx.BarIndex)
	ctx.BarIndex++
	return nil
}

func (it *interp) execStmt(n ast.Node) Value {
	switch s := n.(type) {
	case *ast.FuncDef:
		return NaN() // already registered in prog.Functions; a no-op at exec time
	case *ast.VarDef:
		v := it.evalExpr(s.Value)
		it.env[s.Name] = v
		return v
	case *ast.VarAssign:
		v := it.evalExpr(s.Value)
		it.env[s.Name] = v
		return v
	case *ast.Destructure:
		v := it.evalExpr(s.Value)
		for i, name := range s.Names {
			if i < len(v.Seq) {
				it.env[name] = v.Seq[i]
			} else {
				it.env[name] = NaN()
			}
		}
		return v
	case *ast.If:
		return it.evalIf(s)
	case *ast.For:
		return it.evalFor(s)
	case *ast.Break:
		panic(breakSignal{})
	case *ast.Continue:
		panic(continueSignal{})
	default:
		return it.evalExpr(n)
	}
}

// execBlock runs stmts in order and returns the value of the last one
// executed, or NaN if the block is empty.
func (it *interp) execBlock(stmts []ast.Node) Value {
	result := NaN()
	for _, stmt := range stmts {
		result = it.execStmt(stmt)
	}
	return result
}

func (it *interp) evalIf(n *ast.If) Value {
	if it.evalExpr(n.Cond).Truthy() {
		return it.execBlock(n.Then.Stmts)
	}
	if n.Else != nil {
		return it.execBlock(n.Else.Stmts)
	}
	return NaN()
}

func (it *interp) evalFor(f *ast.For) Value {
	start := it.evalExpr(f.Start).AsFloat()
	end := it.evalExpr(f.End).AsFloat()
	step := 1.0
	if f.Step != nil {
		step = it.evalExpr(f.Step).AsFloat()
	}
	if step == 0 {
		step = 1
	}

	result := NaN()
	for i := start; (step > 0 && i <= end) || (step < 0 && i >= end); i += step {
		it.env[f.Var] = Num(i)
		broke, last := it.runLoopBody(f.Body.Stmts)
		if !last.IsNaN() || len(f.Body.Stmts) > 0 {
			result = last
		}
		if broke {
			break
		}
	}
	return result
}

// runLoopBody executes one iteration's statements, stopping early (without
// propagating) on a continue signal and reporting whether a break signal
// ended the loop entirely.
func (it *interp) runLoopBody(stmts []ast.Node) (broke bool, last Value) {
	last = NaN()
	defer func() {
		if r := recover(); r != nil {
			switch r.(type) {
			case breakSignal:
				broke = true
			case continueSignal:
				// last already holds the value as of the continue point
			default:
				panic(r)
			}
		}
	}()
	for _, stmt := range stmts {
		last = it.execStmt(stmt)
	}
	return false, last
}

func (it *interp) evalExpr(n ast.Node) Value {
	switch e := n.(type) {
	case nil:
		return NaN()
	case *ast.Literal:
		return literalValue(e)
	case *ast.Identifier:
		return it.evalIdentifier(e)
	case *ast.Unary:
		return it.evalUnary(e)
	case *ast.Binary:
		return it.evalBinary(e)
	case *ast.Ternary:
		if it.evalExpr(e.Cond).Truthy() {
			return it.evalExpr(e.Then)
		}
		return it.evalExpr(e.Else)
	case *ast.Subscript:
		return it.evalSubscript(e)
	case *ast.Block:
		return it.execBlock(e.Stmts)
	case *ast.Call:
		return it.evalCall(e)
	case *ast.ArrayLiteral:
		vs := make([]Value, len(e.Elems))
		for i, el := range e.Elems {
			vs[i] = it.evalExpr(el)
		}
		return Seq(vs)
	default:
		panic(fmt.Sprintf("runtime: unhandled expression node %T", n))
	}
}

func literalValue(lit *ast.Literal) Value {
	switch lit.Kind {
	case ast.LitInt:
		return Num(float64(lit.Int))
	case ast.LitFloat:
		return Num(lit.Float)
	case ast.LitString:
		return Str(lit.Str)
	case ast.LitBool:
		return Bool(lit.Bool)
	case ast.LitColor:
		return Color(lit.Color)
	default:
		return NaN()
	}
}

func (it *interp) evalIdentifier(id *ast.Identifier) Value {
	if id.Namespace == "" {
		if v, ok := it.env[id.Name]; ok {
			return v
		}
		switch id.Name {
		case "open":
			return Num(it.ctx.Open)
		case "high":
			return Num(it.ctx.High)
		case "low":
			return Num(it.ctx.Low)
		case "close":
			return Num(it.ctx.Close)
		case "volume":
			return Num(it.ctx.Volume)
		case "time":
			return Num(float64(it.ctx.TimeMs))
		case "bar_index":
			return Num(float64(it.ctx.BarIndex))
		}
		return NaN()
	}
	switch id.FullName() {
	case "strategy.cash":
		return Num(it.ctx.Book.Cash)
	default:
		return NaN()
	}
}

func (it *interp) evalUnary(u *ast.Unary) Value {
	v := it.evalExpr(u.Operand)
	switch u.Op {
	case "not":
		return Bool(!v.Truthy())
	case "-":
		return Num(-v.AsFloat())
	case "+":
		return Num(v.AsFloat())
	default:
		return NaN()
	}
}

func (it *interp) evalBinary(b *ast.Binary) Value {
	switch b.Op {
	case "or":
		l := it.evalExpr(b.Left)
		if l.Truthy() {
			return l
		}
		return it.evalExpr(b.Right)
	case "and":
		l := it.evalExpr(b.Left)
		if !l.Truthy() {
			return l
		}
		return it.evalExpr(b.Right)
	}
	l := it.evalExpr(b.Left)
	r := it.evalExpr(b.Right)
	switch b.Op {
	case "==":
		return Bool(valuesEqual(l, r))
	case "!=":
		return Bool(!valuesEqual(l, r))
	case "<":
		return Bool(l.AsFloat() < r.AsFloat())
	case "<=":
		return Bool(l.AsFloat() <= r.AsFloat())
	case ">":
		return Bool(l.AsFloat() > r.AsFloat())
	case ">=":
		return Bool(l.AsFloat() >= r.AsFloat())
	case "+":
		return Num(l.AsFloat() + r.AsFloat())
	case "-":
		return Num(l.AsFloat() - r.AsFloat())
	case "*":
		return Num(l.AsFloat() * r.AsFloat())
	case "/":
		return Num(l.AsFloat() / r.AsFloat())
	case "%":
		return Num(math.Mod(l.AsFloat(), r.AsFloat()))
	default:
		return NaN()
	}
}

func valuesEqual(l, r Value) bool {
	if l.Kind == KindNumber && r.Kind == KindNumber {
		return l.Num == r.Num
	}
	return l.String() == r.String()
}

func (it *interp) evalSubscript(s *ast.Subscript) Value {
	base := it.evalExpr(s.Base)
	idx := int(it.evalExpr(s.Index).AsFloat())
	if base.Kind != KindSeq || idx < 0 || idx >= len(base.Seq) {
		return NaN()
	}
	return base.Seq[idx]
}

func (it *interp) evalCall(call *ast.Call) Value {
	id, ok := call.Callee.(*ast.Identifier)
	if !ok {
		return NaN()
	}
	name := id.FullName()
	if fn, ok := it.prog.Functions[name]; ok {
		return it.callUserFunction(fn, call)
	}
	args := make([]Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = it.evalExpr(a)
	}
	kwargs := map[string]Value{}
	for _, kw := range call.Kwargs {
		kwargs[kw.Name] = it.evalExpr(kw.Value)
	}
	if _, ok := stdlib.Lookup(name); ok {
		return it.dispatchBuiltin(name, args, kwargs)
	}
	return NaN()
}

func (it *interp) callUserFunction(fn *ast.FuncDef, call *ast.Call) Value {
	callEnv := env{}
	for i, param := range fn.Params {
		if i < len(call.Args) {
			callEnv[param] = it.evalExpr(call.Args[i])
		} else {
			callEnv[param] = NaN()
		}
	}
	sub := &interp{prog: it.prog, ctx: it.ctx, env: callEnv}
	switch body := fn.Body.(type) {
	case *ast.Block:
		return sub.execBlock(body.Stmts)
	default:
		return sub.evalExpr(body)
	}
}
