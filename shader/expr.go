package shader

import (
	"fmt"
	"math"
)

// Expr is a node of an expression tree. The set of implementations is
// closed: Constant, VariableRef, MemberAccess, Binary, Unary, Call, Block,
// Conditional, Loop, Break, Return and Default. Visitors switch over all
// of them and treat anything else as an error.
type Expr interface {
	// Type returns the resolved type of the expression.
	Type() Type
	isExpr()
}

// Constant is a literal bool, int32 or float32 value.
type Constant struct {
	Value any
}

// ConstBool returns a boolean constant.
func ConstBool(v bool) *Constant { return &Constant{Value: v} }

// ConstInt returns an integer constant.
func ConstInt(v int32) *Constant { return &Constant{Value: v} }

// ConstFloat returns a float constant. NaN and infinities are allowed.
func ConstFloat(v float32) *Constant { return &Constant{Value: v} }

// Inf returns positive infinity for sign >= 0 and negative infinity
// otherwise.
func Inf(sign int) *Constant { return ConstFloat(float32(math.Inf(sign))) }

// NaN returns a not-a-number float constant.
func NaN() *Constant { return ConstFloat(float32(math.NaN())) }

// Type implements Expr.
func (c *Constant) Type() Type {
	switch c.Value.(type) {
	case bool:
		return BoolType
	case int32:
		return IntType
	case float32:
		return FloatType
	}
	return VoidType
}

// VariableRef reads or writes a variable.
type VariableRef struct {
	Var *Variable
}

// Ref returns a reference to v.
func Ref(v *Variable) *VariableRef { return &VariableRef{Var: v} }

// Type implements Expr.
func (r *VariableRef) Type() Type { return Deref(r.Var.Type) }

// MemberAccess selects a structure field or a vector swizzle.
type MemberAccess struct {
	X     Expr
	Field string
	T     Type
}

// Member returns x.field. It panics if x has no such field or swizzle.
func Member(x Expr, field string) *MemberAccess {
	switch t := Deref(x.Type()).(type) {
	case *Structure:
		if f, ok := t.Field(field); ok {
			return &MemberAccess{X: x, Field: field, T: f.Type}
		}
	case Primitive:
		if st, ok := swizzleType(t.Kind, field); ok {
			return &MemberAccess{X: x, Field: field, T: st}
		}
	}
	panic(fmt.Sprintf("shader: %s has no member %q", x.Type(), field))
}

// Type implements Expr.
func (m *MemberAccess) Type() Type { return m.T }

// BinaryOp is the operator of a Binary expression.
type BinaryOp uint8

// Binary operators.
const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpAssign
	OpAddAssign
	OpSubAssign
	OpMulAssign
	OpDivAssign
)

var binaryTokens = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
	OpAssign: "=", OpAddAssign: "+=", OpSubAssign: "-=", OpMulAssign: "*=", OpDivAssign: "/=",
}

// Token returns the operator spelling shared by the C-like shading
// languages.
func (op BinaryOp) Token() string {
	if int(op) < len(binaryTokens) {
		return binaryTokens[op]
	}
	return "?"
}

// IsAssign reports whether op stores into its left operand.
func (op BinaryOp) IsAssign() bool { return op >= OpAssign }

// IsComparison reports whether op yields a bool.
func (op BinaryOp) IsComparison() bool { return op >= OpEq && op <= OpOr }

// Binary is a two-operand expression, including assignments.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
	T    Type
}

// Bin returns x op y with the result type inferred from the operands:
// bool for comparisons, the left type for assignments, and the wider
// operand for arithmetic.
func Bin(op BinaryOp, x, y Expr) *Binary {
	var t Type
	switch {
	case op.IsComparison():
		t = BoolType
	case op.IsAssign():
		t = x.Type()
	default:
		t = x.Type()
		if KindOf(y.Type()).Components() > KindOf(t).Components() {
			t = y.Type()
		}
	}
	return &Binary{Op: op, X: x, Y: y, T: t}
}

// Assign returns x = y.
func Assign(x, y Expr) *Binary { return Bin(OpAssign, x, y) }

// Type implements Expr.
func (b *Binary) Type() Type { return b.T }

// UnaryOp is the operator of a Unary expression.
type UnaryOp uint8

// Unary operators.
const (
	OpNeg UnaryOp = iota
	OpNot
	OpBitNot
)

// Token returns the operator spelling.
func (op UnaryOp) Token() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "!"
	case OpBitNot:
		return "~"
	}
	return "?"
}

// Unary is a one-operand expression.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// Not returns !x.
func Not(x Expr) *Unary { return &Unary{Op: OpNot, X: x} }

// Neg returns -x.
func Neg(x Expr) *Unary { return &Unary{Op: OpNeg, X: x} }

// Type implements Expr.
func (u *Unary) Type() Type {
	if u.Op == OpNot {
		return BoolType
	}
	return u.X.Type()
}

// Call invokes either a method of the same shader or a named intrinsic.
// Exactly one of Method and Intrinsic is set.
type Call struct {
	Method    *Method
	Intrinsic string
	Args      []Expr
	T         Type
}

// CallMethod returns a call to m.
func CallMethod(m *Method, args ...Expr) *Call {
	return &Call{Method: m, Args: args, T: m.Return}
}

// Intrinsic returns a call to a built-in function returning ret.
func Intrinsic(name string, ret Type, args ...Expr) *Call {
	return &Call{Intrinsic: name, Args: args, T: ret}
}

// Type implements Expr.
func (c *Call) Type() Type { return c.T }

// Block is a sequence of statements.
type Block struct {
	Stmts []Expr
}

// Blk returns a block of the given statements.
func Blk(stmts ...Expr) *Block { return &Block{Stmts: stmts} }

// Type implements Expr.
func (*Block) Type() Type { return VoidType }

// Conditional is an if statement, or a ternary when used as a value.
// Else may be nil.
type Conditional struct {
	Cond, Then, Else Expr
}

// If returns a conditional without an else branch.
func If(cond, then Expr) *Conditional { return &Conditional{Cond: cond, Then: then} }

// IfElse returns a conditional with both branches.
func IfElse(cond, then, els Expr) *Conditional {
	return &Conditional{Cond: cond, Then: then, Else: els}
}

// Type implements Expr.
func (c *Conditional) Type() Type {
	if c.Else == nil {
		return VoidType
	}
	return c.Then.Type()
}

// Loop repeats Body until a Break or Return leaves it.
type Loop struct {
	Body *Block
}

// Type implements Expr.
func (*Loop) Type() Type { return VoidType }

// While returns the loop form of `while (cond) { body }`: a loop whose
// first statement breaks when cond is false.
func While(cond Expr, body ...Expr) *Loop {
	stmts := append([]Expr{If(Not(cond), &Break{})}, body...)
	return &Loop{Body: Blk(stmts...)}
}

// Break leaves the innermost loop.
type Break struct{}

// Type implements Expr.
func (*Break) Type() Type { return VoidType }

// Return leaves the current method. Value is nil for void methods.
type Return struct {
	Value Expr
}

// Ret returns a return statement.
func Ret(v Expr) *Return { return &Return{Value: v} }

// Type implements Expr.
func (r *Return) Type() Type {
	if r.Value == nil {
		return VoidType
	}
	return r.Value.Type()
}

// Default is the zero value of a type.
type Default struct {
	T Type
}

// Zero returns the default value of t.
func Zero(t Type) *Default { return &Default{T: t} }

// Type implements Expr.
func (d *Default) Type() Type { return d.T }

func (*Constant) isExpr()     {}
func (*VariableRef) isExpr()  {}
func (*MemberAccess) isExpr() {}
func (*Binary) isExpr()       {}
func (*Unary) isExpr()        {}
func (*Call) isExpr()         {}
func (*Block) isExpr()        {}
func (*Conditional) isExpr()  {}
func (*Loop) isExpr()         {}
func (*Break) isExpr()        {}
func (*Return) isExpr()       {}
func (*Default) isExpr()      {}
