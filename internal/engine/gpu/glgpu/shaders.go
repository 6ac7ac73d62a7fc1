package glgpu

import (
	"embed"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-fx/internal/engine/gpu"
	"github.com/Faultbox/midgard-fx/internal/engine/postfx"
)

//go:embed shaders/*.glsl
var shaderFiles embed.FS

const pfxVertexFile = "pfx.vert.glsl"

type pixelShaderDef struct {
	file   string
	cbSize int // 0 = no constant buffer
}

var pixelShaders = map[string]pixelShaderDef{
	postfx.ShaderPSSimple:     {"simple.frag.glsl", 0},
	postfx.ShaderPSLumConvert: {"lum_convert.frag.glsl", 0},
	postfx.ShaderPSLumAdapt:   {"lum_adapt.frag.glsl", 16},
	postfx.ShaderPSTonemap:    {"tonemap.frag.glsl", 16},
	postfx.ShaderPSGaussBlur:  {"gauss_blur.frag.glsl", 16},
	postfx.ShaderPSHDR:        {"hdr.frag.glsl", 16},
}

func shaderSource(file string) (string, error) {
	data, err := shaderFiles.ReadFile("shaders/" + file)
	if err != nil {
		return "", fmt.Errorf("reading shader %s: %w", file, err)
	}
	return string(data), nil
}

// Shader is one entry of the post-effect shader table. Every pixel shader
// is linked with the full-screen vertex shader into its own program, so
// applying the vertex shader is a no-op.
type Shader struct {
	name    string
	stage   gpu.Stage
	program uint32
	cbs     []*gpu.ConstantBuffer
}

// Name implements gpu.Shader.
func (s *Shader) Name() string { return s.name }

// Apply implements gpu.Shader.
func (s *Shader) Apply(gpu.Context) {
	if s.stage == gpu.StagePixel {
		gl.UseProgram(s.program)
	}
}

// ConstantBuffers implements gpu.Shader.
func (s *Shader) ConstantBuffers() []*gpu.ConstantBuffer { return s.cbs }

// ShaderSet is the compiled post-effect shader table.
type ShaderSet struct {
	vertex map[string]*Shader
	pixel  map[string]*Shader
}

// LoadShaders compiles every post-effect program. It must run on the
// render thread.
func LoadShaders(dev *Device) (*ShaderSet, error) {
	vs, err := shaderSource(pfxVertexFile)
	if err != nil {
		return nil, err
	}

	set := &ShaderSet{
		vertex: map[string]*Shader{
			postfx.ShaderVSPFX: {name: postfx.ShaderVSPFX, stage: gpu.StageVertex},
		},
		pixel: make(map[string]*Shader, len(pixelShaders)),
	}

	for name, def := range pixelShaders {
		fs, err := shaderSource(def.file)
		if err != nil {
			set.Close()
			return nil, err
		}
		program, err := CompileProgram(ProgramSource{Vertex: vs, Fragment: fs})
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("compiling %s: %w", name, err)
		}
		sh := &Shader{name: name, stage: gpu.StagePixel, program: program}
		set.pixel[name] = sh

		if def.cbSize > 0 {
			cb, err := gpu.NewConstantBuffer(dev, def.cbSize)
			if err != nil {
				set.Close()
				return nil, fmt.Errorf("shader %s: %w", name, err)
			}
			sh.cbs = []*gpu.ConstantBuffer{cb}
		}
	}
	return set, nil
}

// VertexShader implements gpu.ShaderSet.
func (s *ShaderSet) VertexShader(name string) (gpu.Shader, error) {
	if sh, ok := s.vertex[name]; ok {
		return sh, nil
	}
	return nil, fmt.Errorf("unknown vertex shader %q", name)
}

// PixelShader implements gpu.ShaderSet.
func (s *ShaderSet) PixelShader(name string) (gpu.Shader, error) {
	if sh, ok := s.pixel[name]; ok {
		return sh, nil
	}
	return nil, fmt.Errorf("unknown pixel shader %q", name)
}

// Close deletes the programs and releases their constant buffers.
func (s *ShaderSet) Close() error {
	var errs error
	for _, sh := range s.pixel {
		for _, cb := range sh.cbs {
			errs = multierr.Append(errs, cb.Release())
		}
		if sh.program != 0 {
			gl.DeleteProgram(sh.program)
			sh.program = 0
		}
	}
	return errs
}
