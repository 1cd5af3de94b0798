// Package geom provides the float32 vector, matrix, rectangle and color
// types shared by the canvas, its geometry writers and the shader binder.
//
// All types are plain values laid out densely, so slices of them can be
// copied straight into vertex and uniform buffers.
package geom
