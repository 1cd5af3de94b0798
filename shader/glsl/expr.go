package glsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/canvas/shader"
)

func (e *emitter) stmt(x shader.Expr) error {
	switch x := x.(type) {
	case *shader.Block:
		e.writeLine("{")
		e.indent++
		for _, s := range x.Stmts {
			if err := e.stmt(s); err != nil {
				return err
			}
		}
		e.indent--
		e.writeLine("}")
		return nil
	case *shader.Conditional:
		return e.ifStmt(x)
	case *shader.Loop:
		return e.loop(x)
	case *shader.Break:
		e.writeLine("break;")
		return nil
	case *shader.Return:
		if x.Value == nil {
			e.writeLine("return;")
			return nil
		}
		v, err := e.expr(x.Value)
		if err != nil {
			return err
		}
		e.writeLine("return %s;", v)
		return nil
	}
	s, err := e.expr(x)
	if err != nil {
		return err
	}
	e.writeLine("%s;", s)
	return nil
}

// body writes the statements of a branch without an extra brace level.
func (e *emitter) body(x shader.Expr) error {
	e.indent++
	defer func() { e.indent-- }()
	if b, ok := x.(*shader.Block); ok {
		for _, s := range b.Stmts {
			if err := e.stmt(s); err != nil {
				return err
			}
		}
		return nil
	}
	return e.stmt(x)
}

func (e *emitter) ifStmt(c *shader.Conditional) error {
	cond, err := e.expr(c.Cond)
	if err != nil {
		return err
	}
	e.writeLine("if (%s) {", cond)
	if err := e.body(c.Then); err != nil {
		return err
	}
	for c.Else != nil {
		next, ok := c.Else.(*shader.Conditional)
		if !ok {
			e.writeLine("} else {")
			if err := e.body(c.Else); err != nil {
				return err
			}
			break
		}
		cond, err := e.expr(next.Cond)
		if err != nil {
			return err
		}
		e.writeLine("} else if (%s) {", cond)
		if err := e.body(next.Then); err != nil {
			return err
		}
		c = next
	}
	e.writeLine("}")
	return nil
}

// loop writes a Loop. A body whose first statement is `if (c) break;`
// becomes `while (!c)` with the guard removed; any other body becomes
// `while (true)` and relies on an inner break or return.
func (e *emitter) loop(l *shader.Loop) error {
	var stmts []shader.Expr
	if l.Body != nil {
		stmts = l.Body.Stmts
	}
	cond := "true"
	if guard, ok := whileGuard(stmts); ok {
		c, err := e.negate(guard)
		if err != nil {
			return err
		}
		cond = c
		stmts = stmts[1:]
	}
	e.writeLine("while (%s) {", cond)
	e.indent++
	for _, s := range stmts {
		if err := e.stmt(s); err != nil {
			return err
		}
	}
	e.indent--
	e.writeLine("}")
	return nil
}

func whileGuard(stmts []shader.Expr) (shader.Expr, bool) {
	if len(stmts) == 0 {
		return nil, false
	}
	c, ok := stmts[0].(*shader.Conditional)
	if !ok || c.Else != nil {
		return nil, false
	}
	switch then := c.Then.(type) {
	case *shader.Break:
		return c.Cond, true
	case *shader.Block:
		if len(then.Stmts) == 1 {
			if _, ok := then.Stmts[0].(*shader.Break); ok {
				return c.Cond, true
			}
		}
	}
	return nil, false
}

func (e *emitter) negate(cond shader.Expr) (string, error) {
	if u, ok := cond.(*shader.Unary); ok && u.Op == shader.OpNot {
		return e.expr(u.X)
	}
	s, err := e.expr(cond)
	if err != nil {
		return "", err
	}
	return "!(" + s + ")", nil
}

func (e *emitter) expr(x shader.Expr) (string, error) {
	switch x := x.(type) {
	case *shader.Constant:
		return constant(x)
	case *shader.VariableRef:
		if x.Var.Kind == shader.VertexInput {
			return e.vertexValue(Escape(x.Var.Name), x.Var.Type)
		}
		return Escape(x.Var.Name), nil
	case *shader.MemberAccess:
		if path, t, ok := vertexPath(x); ok {
			return e.vertexValue(path, t)
		}
		base, err := e.expr(x.X)
		if err != nil {
			return "", err
		}
		if needsParens(x.X) {
			base = "(" + base + ")"
		}
		if _, ok := shader.Deref(x.X.Type()).(*shader.Structure); ok {
			return base + "." + Escape(x.Field), nil
		}
		return base + "." + strings.ToLower(x.Field), nil
	case *shader.Binary:
		l, err := e.operand(x.X)
		if err != nil {
			return "", err
		}
		r, err := e.operand(x.Y)
		if err != nil {
			return "", err
		}
		return l + " " + x.Op.Token() + " " + r, nil
	case *shader.Unary:
		v, err := e.expr(x.X)
		if err != nil {
			return "", err
		}
		if needsParens(x.X) || strings.HasPrefix(v, "-") {
			v = "(" + v + ")"
		}
		return x.Op.Token() + v, nil
	case *shader.Call:
		return e.call(x)
	case *shader.Conditional:
		if x.Else == nil {
			return "", unsupported("conditional without else used as a value")
		}
		c, err := e.expr(x.Cond)
		if err != nil {
			return "", err
		}
		a, err := e.expr(x.Then)
		if err != nil {
			return "", err
		}
		b, err := e.expr(x.Else)
		if err != nil {
			return "", err
		}
		return "(" + c + " ? " + a + " : " + b + ")", nil
	case *shader.Default:
		return defaultValue(x.T)
	case *shader.Block, *shader.Loop, *shader.Break, *shader.Return:
		return "", unsupported("statement %T used as a value", x)
	}
	return "", unsupported("expression %T", x)
}

// operand renders an operand of a binary operator. Nested binary
// expressions are always parenthesized.
func (e *emitter) operand(x shader.Expr) (string, error) {
	s, err := e.expr(x)
	if err != nil {
		return "", err
	}
	if _, ok := x.(*shader.Binary); ok {
		return "(" + s + ")", nil
	}
	return s, nil
}

func needsParens(x shader.Expr) bool {
	switch x.(type) {
	case *shader.Binary, *shader.Unary, *shader.Conditional:
		return true
	}
	return false
}

// vertexPath resolves a member chain rooted at a vertex input. Structure
// steps join with an underscore into the flattened attribute name,
// primitive steps use lowercase swizzles.
func vertexPath(x shader.Expr) (string, shader.Type, bool) {
	switch x := x.(type) {
	case *shader.VariableRef:
		if x.Var.Kind != shader.VertexInput {
			return "", nil, false
		}
		return Escape(x.Var.Name), x.Var.Type, true
	case *shader.MemberAccess:
		base, t, ok := vertexPath(x.X)
		if !ok {
			return "", nil, false
		}
		if _, isStruct := t.(*shader.Structure); isStruct {
			return base + "_" + x.Field, x.T, true
		}
		return base + "." + strings.ToLower(x.Field), x.T, true
	}
	return "", nil, false
}

// vertexValue rebuilds a structure value from its flattened attributes.
func (e *emitter) vertexValue(path string, t shader.Type) (string, error) {
	st, ok := t.(*shader.Structure)
	if !ok {
		return path, nil
	}
	fields := make([]string, len(st.Fields))
	for i, f := range st.Fields {
		v, err := e.vertexValue(path+"_"+f.Name, f.Type)
		if err != nil {
			return "", err
		}
		fields[i] = v
	}
	return Escape(st.Name) + "(" + strings.Join(fields, ", ") + ")", nil
}

func constant(c *shader.Constant) (string, error) {
	switch v := c.Value.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case float32:
		return FormatFloat(v), nil
	}
	return "", unsupported("constant of type %T", c.Value)
}

// FormatFloat renders f with 9 significant digits, enough to round-trip
// any float32. Non-finite values refer to the module-level constants.
func FormatFloat(f float32) string {
	switch {
	case math.IsNaN(float64(f)):
		return nanName
	case math.IsInf(float64(f), 1):
		return posInfName
	case math.IsInf(float64(f), -1):
		return negInfName
	}
	s := strconv.FormatFloat(float64(f), 'g', 9, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (e *emitter) call(c *shader.Call) (string, error) {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		s, err := e.expr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	if c.Method != nil {
		return Escape(c.Method.Name) + "(" + strings.Join(args, ", ") + ")", nil
	}
	if lower, ok := intrinsics[c.Intrinsic]; ok {
		return lower(e, c, args)
	}
	if isLowerable(c.Intrinsic) {
		return strings.ToLower(c.Intrinsic) + "(" + strings.Join(args, ", ") + ")", nil
	}
	return "", unsupported("intrinsic %q", c.Intrinsic)
}

// isLowerable matches ^[A-Z][A-Za-z0-9]*$, the intrinsic names that map
// to a GLSL built-in by lowercasing.
func isLowerable(name string) bool {
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for _, r := range name[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

type lowering func(e *emitter, c *shader.Call, args []string) (string, error)

var intrinsics map[string]lowering

func init() {
	intrinsics = map[string]lowering{
		"Add":                infix("+"),
		"Subtract":           infix("-"),
		"Multiply":           infix("*"),
		"Divide":             infix("/"),
		"Index":              lowerIndex,
		"Store":              lowerStore,
		"Sample":             lowerSample,
		"SampleUnnormalized": lowerSampleUnnormalized,
		"Length":             lowerLength,
		"Transform":          lowerTransform,
		"Saturate":           lowerSaturate,
		"Lerp":               rename("mix"),
		"Frac":               rename("fract"),
		"Atan2":              rename("atan"),
		"Rsqrt":              rename("inversesqrt"),
		"Float2":             rename("vec2"),
		"Float3":             rename("vec3"),
		"Float4":             rename("vec4"),
		"Int2":               rename("ivec2"),
		"Int3":               rename("ivec3"),
		"Int4":               rename("ivec4"),
		"ToFloat":            rename("float"),
		"ToInt":              rename("int"),
	}
}

func arity(c *shader.Call, n int) error {
	if len(c.Args) != n {
		return unsupported("intrinsic %s takes %d arguments, got %d", c.Intrinsic, n, len(c.Args))
	}
	return nil
}

func rename(to string) lowering {
	return func(_ *emitter, _ *shader.Call, args []string) (string, error) {
		return to + "(" + strings.Join(args, ", ") + ")", nil
	}
}

func infix(op string) lowering {
	return func(e *emitter, c *shader.Call, _ []string) (string, error) {
		if err := arity(c, 2); err != nil {
			return "", err
		}
		l, err := e.operand(c.Args[0])
		if err != nil {
			return "", err
		}
		r, err := e.operand(c.Args[1])
		if err != nil {
			return "", err
		}
		return "(" + l + " " + op + " " + r + ")", nil
	}
}

func lowerIndex(e *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 2); err != nil {
		return "", err
	}
	base, err := e.operand(c.Args[0])
	if err != nil {
		return "", err
	}
	return base + "[" + args[1] + "]", nil
}

func lowerStore(e *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 3); err != nil {
		return "", err
	}
	base, err := e.operand(c.Args[0])
	if err != nil {
		return "", err
	}
	return base + "[" + args[1] + "] = " + args[2], nil
}

func lowerSample(_ *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 2); err != nil {
		return "", err
	}
	return "texture(" + args[0] + ", " + args[1] + ")", nil
}

func lowerSampleUnnormalized(e *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 2); err != nil {
		return "", err
	}
	uv, err := e.operand(c.Args[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("texture(%s, %s / vec2(textureSize(%s, 0)))", args[0], uv, args[0]), nil
}

func lowerLength(e *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 1); err != nil {
		return "", err
	}
	if _, ok := shader.Deref(c.Args[0].Type()).(shader.Array); ok {
		base, err := e.operand(c.Args[0])
		if err != nil {
			return "", err
		}
		return base + ".length()", nil
	}
	return "length(" + args[0] + ")", nil
}

func lowerTransform(e *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 2); err != nil {
		return "", err
	}
	m, err := e.operand(c.Args[0])
	if err != nil {
		return "", err
	}
	v := args[1]
	switch mk, vk := shader.KindOf(c.Args[0].Type()), shader.KindOf(c.Args[1].Type()); {
	case mk == shader.Matrix3x2 && vk == shader.Float2:
		v = "vec3(" + v + ", 1.0)"
	case mk == shader.Matrix4x4 && vk == shader.Float2:
		v = "vec4(" + v + ", 0.0, 1.0)"
	case mk == shader.Matrix4x4 && vk == shader.Float3:
		v = "vec4(" + v + ", 1.0)"
	case mk == shader.Matrix4x4 && vk == shader.Float4:
		v, err = e.operand(c.Args[1])
		if err != nil {
			return "", err
		}
	default:
		return "", unsupported("Transform of %s by %s", c.Args[1].Type(), c.Args[0].Type())
	}
	return "(" + m + " * " + v + ")", nil
}

func lowerSaturate(_ *emitter, c *shader.Call, args []string) (string, error) {
	if err := arity(c, 1); err != nil {
		return "", err
	}
	return "clamp(" + args[0] + ", 0.0, 1.0)", nil
}
