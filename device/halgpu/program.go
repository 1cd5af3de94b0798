package halgpu

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/shader"
	"github.com/gogpu/canvas/shader/wgsl"
)

// stage is one linked shader stage. Its bindings live in bind group
// number equal to its index in program.stages.
type stage struct {
	mod        *wgsl.Module
	module     hal.ShaderModule
	layout     hal.BindGroupLayout
	visibility gputypes.ShaderStage

	// uniforms shadows the uniform block.
	uniforms []byte
	// textureParams maps each texture slot to its program param.
	textureParams []int
	// storageSlots maps each storage slot to its program storage ordinal.
	storageSlots []int

	// Per-frame state, cleared when the frame is released.
	ubuf    hal.Buffer
	group   hal.BindGroup
	version uint64
}

// param is one uniform reachable through a Location. A name declared
// by both stages writes both.
type param struct {
	name    string
	kind    shader.Kind
	targets []paramTarget
	// unit is the texture unit of a texture param, -1 until set.
	unit int
}

type paramTarget struct {
	stage  int
	offset int
}

type program struct {
	name      string
	stages    []*stage
	params    []param
	locations map[string]device.Location
	storage   []string

	layout  hal.PipelineLayout
	compute hal.ComputePipeline
}

// orderStages returns the stages of src in bind group order: vertex then
// fragment, or the compute stage alone.
func orderStages(src device.ProgramSource) ([]device.StageSource, error) {
	if cs, ok := src.Stage(shader.Compute); ok {
		if len(src.Stages) != 1 {
			return nil, fmt.Errorf("compute program has %d stages", len(src.Stages))
		}
		return []device.StageSource{cs}, nil
	}
	vs, okv := src.Stage(shader.Vertex)
	fs, okf := src.Stage(shader.Fragment)
	if !okv || !okf {
		return nil, fmt.Errorf("render program needs a vertex and a fragment stage")
	}
	return []device.StageSource{vs, fs}, nil
}

func visibility(st shader.Stage) gputypes.ShaderStage {
	switch st {
	case shader.Vertex:
		return gputypes.ShaderStageVertex
	case shader.Fragment:
		return gputypes.ShaderStageFragment
	}
	return gputypes.ShaderStageCompute
}

func (d *Device) CreateProgram(src device.ProgramSource) (device.ProgramID, error) {
	if src.Language != device.WGSL {
		return device.InvalidID, fmt.Errorf("%w: %s program %q", ErrLanguage, src.Language, src.Name)
	}
	linkErr := func(err error) error {
		return &device.LinkError{Program: src.Name, Log: err.Error(), Err: err}
	}
	stages, err := orderStages(src)
	if err != nil {
		return device.InvalidID, linkErr(err)
	}

	p := &program{name: src.Name, locations: make(map[string]device.Location)}
	for group, ss := range stages {
		if ss.Shader == nil {
			p.destroy(d.dev)
			return device.InvalidID, linkErr(fmt.Errorf("%s stage has no shader IR", ss.Stage))
		}
		mod, err := wgsl.EmitGroup(ss.Shader, group)
		if err != nil {
			p.destroy(d.dev)
			return device.InvalidID, linkErr(err)
		}
		s, err := d.newStage(src.Name, mod)
		if err != nil {
			p.destroy(d.dev)
			return device.InvalidID, err
		}
		p.stages = append(p.stages, s)
	}
	p.collect()

	layouts := make([]hal.BindGroupLayout, len(p.stages))
	for i, s := range p.stages {
		layouts[i] = s.layout
	}
	p.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            d.label(src.Name + "_layout"),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		p.destroy(d.dev)
		return device.InvalidID, fmt.Errorf("halgpu: program %q: create pipeline layout: %w", src.Name, err)
	}

	if s := p.stages[0]; s.mod.Stage == shader.Compute {
		p.compute, err = d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  d.label(src.Name + "_compute"),
			Layout: p.layout,
			Compute: hal.ComputeState{
				Module:     s.module,
				EntryPoint: s.mod.EntryPoint,
			},
		})
		if err != nil {
			p.destroy(d.dev)
			return device.InvalidID, linkErr(err)
		}
	}

	id := device.ProgramID(d.id())
	d.programs[id] = p
	slogger().Debug("halgpu: program created",
		"name", src.Name,
		"stages", len(p.stages),
		"params", len(p.params),
		"storage", len(p.storage))
	return id, nil
}

// newStage validates mod with naga and creates its module and bind
// group layout.
func (d *Device) newStage(name string, mod *wgsl.Module) (*stage, error) {
	spirv, err := naga.Compile(mod.Source)
	if err != nil {
		return nil, &device.LinkError{Program: name, Log: err.Error(), Err: err}
	}
	source := hal.ShaderSource{WGSL: mod.Source}
	if d.opts.spirv {
		words := make([]uint32, len(spirv)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
		}
		source = hal.ShaderSource{SPIRV: words}
	}
	s := &stage{
		mod:        mod,
		visibility: visibility(mod.Stage),
		uniforms:   make([]byte, mod.UniformSize),
	}
	s.module, err = d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.label(name + "_" + mod.Stage.String()),
		Source: source,
	})
	if err != nil {
		return nil, &device.LinkError{Program: name, Log: err.Error(), Err: err}
	}
	s.layout, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   d.label(name + "_" + mod.Stage.String() + "_bindings"),
		Entries: s.layoutEntries(),
	})
	if err != nil {
		d.dev.DestroyShaderModule(s.module)
		return nil, fmt.Errorf("halgpu: program %q: create bind group layout: %w", name, err)
	}
	return s, nil
}

func (s *stage) layoutEntries() []gputypes.BindGroupLayoutEntry {
	var entries []gputypes.BindGroupLayoutEntry
	if s.mod.UniformBinding >= 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(s.mod.UniformBinding),
			Visibility: s.visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	for _, t := range s.mod.Textures {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(t.Binding),
				Visibility: s.visibility,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(t.SamplerBinding),
				Visibility: s.visibility,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			})
	}
	storageType := gputypes.BufferBindingTypeReadOnlyStorage
	if s.mod.Stage == shader.Compute {
		storageType = gputypes.BufferBindingTypeStorage
	}
	for _, st := range s.mod.Storage {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(st.Binding),
			Visibility: s.visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: storageType},
		})
	}
	return entries
}

// collect builds the params and storage ordinals of p from its stages.
func (p *program) collect() {
	index := func(name string, kind shader.Kind) int {
		if loc, ok := p.locations[name]; ok {
			return int(loc)
		}
		p.locations[name] = device.Location(len(p.params))
		p.params = append(p.params, param{name: name, kind: kind, unit: -1})
		return len(p.params) - 1
	}
	for si, s := range p.stages {
		for _, u := range s.mod.Uniforms {
			i := index(u.Name, u.Kind)
			p.params[i].targets = append(p.params[i].targets, paramTarget{stage: si, offset: u.Offset})
		}
		for _, t := range s.mod.Textures {
			s.textureParams = append(s.textureParams, index(t.Name, shader.Texture))
		}
		for _, st := range s.mod.Storage {
			slot := slices.Index(p.storage, st.Name)
			if slot < 0 {
				slot = len(p.storage)
				p.storage = append(p.storage, st.Name)
			}
			s.storageSlots = append(s.storageSlots, slot)
		}
	}
}

func (p *program) destroy(dev hal.Device) {
	if p.compute != nil {
		dev.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
	if p.layout != nil {
		dev.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, s := range p.stages {
		dev.DestroyBindGroupLayout(s.layout)
		dev.DestroyShaderModule(s.module)
	}
	p.stages = nil
}

func (d *Device) DestroyProgram(id device.ProgramID) {
	p, ok := d.programs[id]
	if !ok {
		return
	}
	delete(d.programs, id)
	if d.st.program == p {
		d.st.program = nil
	}
	if d.frame != nil {
		d.frame.programs = append(d.frame.programs, p)
		return
	}
	d.releaseProgram(p)
}

// releaseProgram destroys p and the pipelines built from it.
func (d *Device) releaseProgram(p *program) {
	for key, pl := range d.pipelines {
		if key.program == p {
			d.dev.DestroyRenderPipeline(pl)
			delete(d.pipelines, key)
		}
	}
	p.destroy(d.dev)
}

func (d *Device) UniformLocation(id device.ProgramID, name string) device.Location {
	p, ok := d.programs[id]
	if !ok {
		return -1
	}
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	return -1
}

func (d *Device) UseProgram(id device.ProgramID) {
	p, ok := d.programs[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownProgram, id))
		d.st.program = nil
		return
	}
	if d.st.program != p {
		clear(d.st.storage)
		d.st.version++
	}
	d.st.program = p
}

func (d *Device) SetUniform(loc device.Location, kind shader.Kind, words []uint32) {
	p := d.st.program
	if p == nil || loc < 0 || int(loc) >= len(p.params) {
		return
	}
	prm := &p.params[loc]
	if prm.kind != kind {
		d.fail(fmt.Errorf("halgpu: uniform %s of program %q is %s, set as %s", prm.name, p.name, prm.kind, kind))
		return
	}
	if kind == shader.Texture {
		if len(words) > 0 {
			prm.unit = int(words[0])
			d.st.version++
		}
		return
	}
	for _, t := range prm.targets {
		s := p.stages[t.stage]
		if t.offset+4*len(words) > len(s.uniforms) {
			d.fail(fmt.Errorf("%w: uniform %s of program %q", device.ErrOutOfRange, prm.name, p.name))
			return
		}
		for i, w := range words {
			binary.LittleEndian.PutUint32(s.uniforms[t.offset+4*i:], w)
		}
		s.ubuf = nil
		s.group = nil
	}
}

func (d *Device) BindTexture(unit int, tex device.TextureID) {
	if tex == device.InvalidID {
		delete(d.st.units, unit)
	} else {
		d.st.units[unit] = tex
	}
	d.st.version++
}

func (d *Device) BindStorageBuffer(slot int, buf device.BufferID) {
	p := d.st.program
	if p == nil {
		d.fail(fmt.Errorf("halgpu: storage slot %d bound with no program in use", slot))
		return
	}
	if slot < 0 || slot >= len(p.storage) {
		d.fail(fmt.Errorf("%w: storage slot %d of program %q with %d storage arrays",
			device.ErrOutOfRange, slot, p.name, len(p.storage)))
		return
	}
	if _, ok := d.buffers[buf]; !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownBuffer, buf))
		return
	}
	d.st.storage[slot] = buf
	d.st.version++
}
