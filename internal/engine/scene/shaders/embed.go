// Package shaders provides embedded GLSL shader sources.
package shaders

import _ "embed"

// SceneVertexShader is the vertex shader for the lit scene pass.
//
//go:embed scene.vert
var SceneVertexShader string

// SceneFragmentShader shades the scene into the HDR target, either with
// ambient, sun and unshadowed point lights or with one shadowed point light.
//
//go:embed scene.frag
var SceneFragmentShader string

// ShadowCubeVertexShader passes world positions to the cube geometry shader.
//
//go:embed shadow_cube.vert
var ShadowCubeVertexShader string

// ShadowCubeGeometryShader fans each triangle out to all six cube faces.
//
//go:embed shadow_cube.geom
var ShadowCubeGeometryShader string

// ShadowFaceVertexShader renders one cube face with an explicit matrix.
//
//go:embed shadow_face.vert
var ShadowFaceVertexShader string

// ShadowFragmentShader writes linear light distance as depth.
//
//go:embed shadow.frag
var ShadowFragmentShader string

// DebugVertexShader transforms world space line vertices.
//
//go:embed debug.vert
var DebugVertexShader string

// DebugFragmentShader draws lines in a flat color.
//
//go:embed debug.frag
var DebugFragmentShader string
