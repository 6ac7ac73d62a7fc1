package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
)

// ProgramSource holds the GLSL of one program. Geometry is optional.
type ProgramSource struct {
	Vertex   string
	Geometry string
	Fragment string
}

// stagePrefixes name uniform blocks and samplers by stage: a block called
// PS_CB1 binds to pixel constant buffer slot 1, a sampler called GS_Tex0 to
// geometry texture slot 0.
var stagePrefixes = [...]string{
	gpu.StageVertex:   "VS",
	gpu.StageHull:     "HS",
	gpu.StageDomain:   "DS",
	gpu.StageGeometry: "GS",
	gpu.StagePixel:    "PS",
}

// CompileProgram compiles and links src, then wires its slot-named uniform
// blocks and samplers to the context's binding points.
func CompileProgram(src ProgramSource) (uint32, error) {
	vert, err := compileShader(src.Vertex, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vert)

	var geom uint32
	if src.Geometry != "" {
		if geom, err = compileShader(src.Geometry, gl.GEOMETRY_SHADER, "geometry"); err != nil {
			return 0, err
		}
		defer gl.DeleteShader(geom)
	}

	frag, err := compileShader(src.Fragment, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(frag)

	program := gl.CreateProgram()
	gl.AttachShader(program, vert)
	if geom != 0 {
		gl.AttachShader(program, geom)
	}
	gl.AttachShader(program, frag)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetProgramInfoLog(program, logLen, nil, &log[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %s", gl.GoStr(&log[0]))
	}

	bindSlots(program)
	return program, nil
}

func compileShader(source string, shaderType uint32, name string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetShaderInfoLog(shader, logLen, nil, &log[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s shader: %s", name, gl.GoStr(&log[0]))
	}

	return shader, nil
}

// BlockName returns the uniform block name bound to a stage slot.
func BlockName(stage gpu.Stage, slot int) string {
	return fmt.Sprintf("%s_CB%d", stagePrefixes[stage], slot)
}

// SamplerName returns the sampler name bound to a stage slot.
func SamplerName(stage gpu.Stage, slot int) string {
	return fmt.Sprintf("%s_Tex%d", stagePrefixes[stage], slot)
}

// bindSlots points every slot-named block and sampler the program declares
// at its binding point. GLSL 4.10 has no binding layout qualifier.
func bindSlots(program uint32) {
	gl.UseProgram(program)
	for stage := gpu.StageVertex; stage <= gpu.StagePixel; stage++ {
		for slot := 0; slot < SlotsPerStage; slot++ {
			point := BindingPoint(stage, slot)
			if idx := gl.GetUniformBlockIndex(program, gl.Str(BlockName(stage, slot)+"\x00")); idx != gl.INVALID_INDEX {
				gl.UniformBlockBinding(program, idx, point)
			}
			if loc := Uniform(program, SamplerName(stage, slot)); loc >= 0 {
				gl.Uniform1i(loc, int32(point))
			}
		}
	}
	if idx := gl.GetUniformBlockIndex(program, gl.Str("LinearDepth\x00")); idx != gl.INVALID_INDEX {
		gl.UniformBlockBinding(program, idx, LinearDepthBinding)
	}
	gl.UseProgram(0)
}

// Uniform returns the uniform location for name, -1 if the program does not
// use it.
func Uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}
