// Package shader defines the intermediate representation of a GPU shader:
// types with their buffer layouts, variables, methods and expression trees.
//
// A Shader is built once, either by hand with the expression constructors
// or from host structs with TypeOf and VariablesOf, and then handed to a
// dialect emitter (shader/glsl, shader/wgsl). Shaders, types and
// expressions are immutable after construction and may be shared between
// goroutines.
package shader
