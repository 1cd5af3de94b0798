package canvas

import (
	"fmt"
	"reflect"

	"github.com/gogpu/canvas/internal/geometry"
	"github.com/gogpu/canvas/shader"
)

// texturedUniforms backs the uniforms of the textured effect.
type texturedUniforms struct {
	Tex *Texture
}

// vertexInput returns the vertex input variable for host vertex type V.
func vertexInput[V any]() *shader.Variable {
	t, err := shader.TypeOf(reflect.TypeFor[V]())
	if err != nil {
		panic(fmt.Sprintf("canvas: vertex type: %v", err))
	}
	return shader.Var("v", t, shader.VertexInput)
}

// solidShaders passes the vertex color through.
func solidShaders() (vs, fs *shader.Shader) {
	in := vertexInput[geometry.ColorVertex]()
	proj := shader.Var(projectionUniform, shader.Mat4Type, shader.Uniform)
	color := shader.Var("vColor", shader.Float4Type, shader.VertexOutput)
	vmain := &shader.Method{
		Name:   "main",
		Return: shader.Float4Type,
		Body: shader.Blk(
			shader.Assign(shader.Ref(color), shader.Member(shader.Ref(in), "color")),
			shader.Ret(shader.Intrinsic("Transform", shader.Float4Type, shader.Ref(proj), shader.Member(shader.Ref(in), "pos"))),
		),
	}
	vs = &shader.Shader{
		Name:      "solid",
		Stage:     shader.Vertex,
		Variables: []*shader.Variable{proj, in, color},
		Methods:   []*shader.Method{vmain},
		Entry:     vmain,
	}

	fcolor := shader.Var("vColor", shader.Float4Type, shader.VertexOutput)
	fmain := &shader.Method{
		Name:   "main",
		Return: shader.Float4Type,
		Body:   shader.Blk(shader.Ret(shader.Ref(fcolor))),
	}
	fs = &shader.Shader{
		Name:      "solid",
		Stage:     shader.Fragment,
		Variables: []*shader.Variable{fcolor},
		Methods:   []*shader.Method{fmain},
		Entry:     fmain,
	}
	return vs, fs
}

// texturedShaders multiplies a texture sample by the vertex color. Both
// are premultiplied.
func texturedShaders() (vs, fs *shader.Shader) {
	in := vertexInput[geometry.TexVertex]()
	proj := shader.Var(projectionUniform, shader.Mat4Type, shader.Uniform)
	uv := shader.Var("vUV", shader.Float2Type, shader.VertexOutput)
	color := shader.Var("vColor", shader.Float4Type, shader.VertexOutput)
	vmain := &shader.Method{
		Name:   "main",
		Return: shader.Float4Type,
		Body: shader.Blk(
			shader.Assign(shader.Ref(uv), shader.Member(shader.Ref(in), "uv")),
			shader.Assign(shader.Ref(color), shader.Member(shader.Ref(in), "color")),
			shader.Ret(shader.Intrinsic("Transform", shader.Float4Type, shader.Ref(proj), shader.Member(shader.Ref(in), "pos"))),
		),
	}
	vs = &shader.Shader{
		Name:      "textured",
		Stage:     shader.Vertex,
		Variables: []*shader.Variable{proj, in, uv, color},
		Methods:   []*shader.Method{vmain},
		Entry:     vmain,
	}

	uniforms, err := shader.VariablesOf(reflect.TypeFor[texturedUniforms](), shader.Uniform)
	if err != nil {
		panic(fmt.Sprintf("canvas: textured uniforms: %v", err))
	}
	tex := uniforms[0]
	fuv := shader.Var("vUV", shader.Float2Type, shader.VertexOutput)
	fcolor := shader.Var("vColor", shader.Float4Type, shader.VertexOutput)
	fmain := &shader.Method{
		Name:   "main",
		Return: shader.Float4Type,
		Body: shader.Blk(shader.Ret(shader.Bin(shader.OpMul,
			shader.Intrinsic("Sample", shader.Float4Type, shader.Ref(tex), shader.Ref(fuv)),
			shader.Ref(fcolor),
		))),
	}
	fs = &shader.Shader{
		Name:      "textured",
		Stage:     shader.Fragment,
		Variables: []*shader.Variable{tex, fuv, fcolor},
		Methods:   []*shader.Method{fmain},
		Entry:     fmain,
	}
	return vs, fs
}

// initEffects links the built-in effects.
func (c *Canvas) initEffects() error {
	vs, fs := solidShaders()
	solid, err := c.effect(effectKey{vs, fs})
	if err != nil {
		return err
	}
	vs, fs = texturedShaders()
	textured, err := c.effect(effectKey{vs, fs})
	if err != nil {
		return err
	}
	c.solid, c.texture = solid, textured
	return nil
}
