package wgsl

import "strings"

// reserved holds WGSL keywords, reserved words, predeclared types and
// built-in function names.
var reserved = func() map[string]struct{} {
	words := `
	alias break case const const_assert continue continuing default diagnostic discard else enable
	false fn for if let loop override requires return struct switch true var while
	NULL Self abstract active alignas alignof as asm asm_fragment async attribute auto await
	become binding_array cast catch class co_await co_return co_yield coherent column_major common
	compile compile_fragment concept const_cast consteval constexpr constinit crate debugger decltype
	delete demote demote_to_helper do dynamic_cast enum explicit export extends extern external
	fallthrough filter final finally friend from fxgroup get goto groupshared highp impl implements
	import inline instanceof interface layout lowp macro macro_rules match mediump meta mod module
	move mut mutable namespace new nil noexcept noinline nointerpolation noperspective null nullptr
	of operator package packoffset partition pass patch pixelfragment precise precision premerge priv
	protected pub public readonly ref regardless register reinterpret_cast require resource restrict
	self set shared sizeof smooth snorm static static_assert static_cast std subroutine super target
	template this thread_local throw trait try type typedef typeid typename typeof union unless
	unorm unsafe unsized use using varying virtual volatile wgsl where with writeonly yield
	bool f16 f32 i32 u32 vec2 vec3 vec4 mat2x2 mat2x3 mat2x4 mat3x2 mat3x3 mat3x4 mat4x2 mat4x3 mat4x4
	array atomic ptr sampler sampler_comparison texture_1d texture_2d texture_2d_array texture_3d
	texture_cube texture_cube_array texture_multisampled_2d texture_storage_2d texture_depth_2d
	abs acos acosh all any arrayLength asin asinh atan atan2 atanh bitcast ceil clamp cos cosh
	countLeadingZeros countOneBits countTrailingZeros cross degrees determinant distance dot dpdx
	dpdy exp exp2 extractBits faceForward firstLeadingBit firstTrailingBit floor fma fract frexp
	fwidth insertBits inverseSqrt ldexp length log log2 max min mix modf normalize pow quantizeToF16
	radians reflect refract reverseBits round saturate select sign sin sinh smoothstep sqrt step tan
	tanh transpose trunc textureDimensions textureGather textureLoad textureNumLayers textureNumLevels
	textureSample textureSampleBias textureSampleCompare textureSampleGrad textureSampleLevel
	textureStore storageBarrier workgroupBarrier main
	`
	m := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		m[w] = struct{}{}
	}
	return m
}()

// Escape returns name, prefixed with an underscore if it is reserved.
// Escape is idempotent.
func Escape(name string) string {
	if name == "" {
		return "_unnamed"
	}
	if _, ok := reserved[name]; ok {
		return "_" + name
	}
	return name
}
