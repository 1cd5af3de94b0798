package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/canvas/device"
	"github.com/gogpu/canvas/geom"
)

type vertexBinding struct {
	buf    hal.Buffer
	offset int
	layout *device.VertexLayout
}

type indexBinding struct {
	buf    hal.Buffer
	format gputypes.IndexFormat
}

// bindState is what the recording calls have set since the last draw.
type bindState struct {
	program  *program
	units    map[int]device.TextureID
	storage  map[int]device.BufferID
	vertex   vertexBinding
	instance vertexBinding
	index    indexBinding
	scissor  *geom.Rect
	stencil  device.Stencil
	// version changes whenever a bound texture or storage buffer does,
	// invalidating cached bind groups.
	version uint64
}

func (s *bindState) reset() {
	*s = bindState{
		units:   make(map[int]device.TextureID),
		storage: make(map[int]device.BufferID),
		version: s.version + 1,
	}
}

// frame holds the open command encoder and the objects it references.
type frame struct {
	enc     hal.CommandEncoder
	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder

	buffers  []hal.Buffer
	textures []*texture
	groups   []hal.BindGroup
	programs []*program

	// State applied to the open render pass.
	pipeline hal.RenderPipeline
	bound    [2]hal.BindGroup
	scissor  [4]uint32
	hasClip  bool
	ref      int
}

func (f *frame) endPasses() {
	if f.render != nil {
		f.render.End()
		f.render = nil
	}
	if f.compute != nil {
		f.compute.End()
		f.compute = nil
	}
}

func (f *frame) discard() {
	f.endPasses()
	f.enc.DiscardEncoding()
}

type pipelineKey struct {
	program  *program
	vertex   *device.VertexLayout
	instance *device.VertexLayout
	topology gputypes.PrimitiveTopology
	read     uint8
	write    uint8
}

func (d *Device) BindVertexBuffer(id device.BufferID, offset int, layout *device.VertexLayout) {
	b, ok := d.buffers[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id))
		return
	}
	d.st.vertex = vertexBinding{buf: b.buf, offset: offset, layout: layout}
}

func (d *Device) BindInstanceBuffer(id device.BufferID, offset int, layout *device.VertexLayout) {
	if layout == nil {
		d.st.instance = vertexBinding{}
		return
	}
	b, ok := d.buffers[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id))
		return
	}
	d.st.instance = vertexBinding{buf: b.buf, offset: offset, layout: layout}
}

func (d *Device) BindIndexBuffer(id device.BufferID, format gputypes.IndexFormat) {
	b, ok := d.buffers[id]
	if !ok {
		d.fail(fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id))
		return
	}
	d.st.index = indexBinding{buf: b.buf, format: format}
}

func (d *Device) beginFrame() *frame {
	if d.frame != nil {
		return d.frame
	}
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: d.label("encoder")})
	if err != nil {
		d.fail(fmt.Errorf("halgpu: create command encoder: %w", err))
		return nil
	}
	if err := enc.BeginEncoding(d.label("frame")); err != nil {
		d.fail(fmt.Errorf("halgpu: begin encoding: %w", err))
		return nil
	}
	d.frame = &frame{enc: enc, ref: -1}
	return d.frame
}

func (d *Device) renderPass(f *frame) hal.RenderPassEncoder {
	if f.render != nil {
		return f.render
	}
	f.endPasses()
	load := gputypes.LoadOpLoad
	if !d.cleared {
		load = gputypes.LoadOpClear
		d.cleared = true
	}
	f.render = f.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: d.label("pass"),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       d.color.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              d.stencil.view,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     load,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		},
	})
	f.pipeline = nil
	f.bound = [2]hal.BindGroup{}
	f.hasClip = false
	f.ref = -1
	return f.render
}

func (d *Device) computePass(f *frame) hal.ComputePassEncoder {
	if f.compute != nil {
		return f.compute
	}
	f.endPasses()
	f.compute = f.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: d.label("compute")})
	return f.compute
}

// renderPipeline returns the cached pipeline for the current program,
// vertex layouts, topology and stencil mode, creating it on first use.
func (d *Device) renderPipeline(topology gputypes.PrimitiveTopology) (hal.RenderPipeline, error) {
	p := d.st.program
	key := pipelineKey{
		program:  p,
		vertex:   d.st.vertex.layout,
		instance: d.st.instance.layout,
		topology: topology,
		read:     d.st.stencil.Read,
		write:    d.st.stencil.Write,
	}
	if pl, ok := d.pipelines[key]; ok {
		return pl, nil
	}

	buffers := []gputypes.VertexBufferLayout{key.vertex.Buffer(gputypes.VertexStepModeVertex)}
	attrs := len(key.vertex.Attributes)
	if key.instance != nil {
		inst := key.instance.Buffer(gputypes.VertexStepModeInstance)
		relocated := make([]gputypes.VertexAttribute, len(inst.Attributes))
		for i, a := range inst.Attributes {
			a.ShaderLocation = uint32(attrs + i)
			relocated[i] = a
		}
		inst.Attributes = relocated
		buffers = append(buffers, inst)
		attrs += len(relocated)
	}
	vs, fs := p.stages[0], p.stages[1]
	if attrs != len(vs.mod.Attributes) {
		return nil, fmt.Errorf("halgpu: program %q takes %d attributes, layout %s provides %d",
			p.name, len(vs.mod.Attributes), key.vertex, attrs)
	}

	compare := gputypes.CompareFunctionAlways
	if key.read != 0 {
		compare = gputypes.CompareFunctionEqual
	}
	pass := hal.StencilOperationKeep
	if key.write != 0 {
		pass = hal.StencilOperationReplace
	}
	face := hal.StencilFaceState{
		Compare:     compare,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      pass,
	}
	blend := gputypes.BlendStatePremultiplied()
	pl, err := d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  d.label(p.name + "_pipeline"),
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.mod.EntryPoint,
			Buffers:    buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.mod.EntryPoint,
			Targets: []gputypes.ColorTargetState{{
				Format:    targetFormat,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            stencilFormat,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      face,
			StencilBack:       face,
			StencilReadMask:   uint32(key.read),
			StencilWriteMask:  uint32(key.write),
		},
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: program %q: create render pipeline: %w", p.name, err)
	}
	d.pipelines[key] = pl
	slogger().Debug("halgpu: pipeline created",
		"program", p.name,
		"layout", key.vertex.String(),
		"topology", topology,
		"stencil_read", key.read,
		"stencil_write", key.write,
		"cached", len(d.pipelines))
	return pl, nil
}

// bindGroup returns the bind group of stage si of p, rebuilding it when
// its uniforms or the bound resources changed.
func (d *Device) bindGroup(f *frame, p *program, si int) (hal.BindGroup, error) {
	s := p.stages[si]
	if s.group != nil && s.version == d.st.version {
		return s.group, nil
	}
	var entries []gputypes.BindGroupEntry
	if s.mod.UniformBinding >= 0 {
		if s.ubuf == nil {
			size := (len(s.uniforms) + 15) &^ 15
			buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
				Label: d.label(p.name + "_uniforms"),
				Size:  uint64(size),
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return nil, fmt.Errorf("halgpu: create uniform buffer: %w", err)
			}
			data := make([]byte, size)
			copy(data, s.uniforms)
			d.queue.WriteBuffer(buf, 0, data)
			f.buffers = append(f.buffers, buf)
			s.ubuf = buf
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(s.mod.UniformBinding),
			Resource: gputypes.BufferBinding{
				Buffer: s.ubuf.NativeHandle(), Offset: 0, Size: uint64(s.mod.UniformSize),
			},
		})
	}
	for ti, ts := range s.mod.Textures {
		view := d.blank.view
		if unit := p.params[s.textureParams[ti]].unit; unit >= 0 {
			if t, ok := d.textures[d.st.units[unit]]; ok {
				view = t.view
			}
		}
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  uint32(ts.Binding),
				Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  uint32(ts.SamplerBinding),
				Resource: gputypes.SamplerBinding{Sampler: d.sampler.NativeHandle()},
			})
	}
	for i, ss := range s.mod.Storage {
		b, ok := d.buffers[d.st.storage[s.storageSlots[i]]]
		if !ok {
			return nil, fmt.Errorf("halgpu: program %q: storage %s not bound", p.name, ss.Name)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(ss.Binding),
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: 0},
		})
	}
	g, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   d.label(p.name + "_group"),
		Layout:  s.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: program %q: create bind group: %w", p.name, err)
	}
	f.groups = append(f.groups, g)
	s.group, s.version = g, d.st.version
	return g, nil
}

func (d *Device) Draw(topology gputypes.PrimitiveTopology, first, count, instances int) {
	d.draw(false, topology, first, count, instances)
}

func (d *Device) DrawIndexed(topology gputypes.PrimitiveTopology, first, count, instances int) {
	d.draw(true, topology, first, count, instances)
}

func (d *Device) draw(indexed bool, topology gputypes.PrimitiveTopology, first, count, instances int) {
	p := d.st.program
	switch {
	case p == nil:
		d.fail(errors.New("halgpu: draw with no program in use"))
		return
	case p.compute != nil:
		d.fail(fmt.Errorf("halgpu: draw with compute program %q", p.name))
		return
	case d.st.vertex.layout == nil:
		d.fail(fmt.Errorf("halgpu: draw of program %q with no vertex buffer", p.name))
		return
	case indexed && d.st.index.buf == nil:
		d.fail(fmt.Errorf("halgpu: indexed draw of program %q with no index buffer", p.name))
		return
	case count <= 0:
		return
	}
	x, y, w, h := d.scissorRect(d.st.scissor)
	if w == 0 || h == 0 {
		return
	}
	pl, err := d.renderPipeline(topology)
	if err != nil {
		d.fail(err)
		return
	}
	f := d.beginFrame()
	if f == nil {
		return
	}
	var groups [2]hal.BindGroup
	for i := range p.stages {
		if groups[i], err = d.bindGroup(f, p, i); err != nil {
			d.fail(err)
			return
		}
	}

	rp := d.renderPass(f)
	if f.pipeline != pl {
		rp.SetPipeline(pl)
		f.pipeline = pl
	}
	for i, g := range groups {
		if f.bound[i] != g {
			rp.SetBindGroup(uint32(i), g, nil)
			f.bound[i] = g
		}
	}
	rp.SetVertexBuffer(0, d.st.vertex.buf, uint64(d.st.vertex.offset))
	if d.st.instance.layout != nil {
		rp.SetVertexBuffer(1, d.st.instance.buf, uint64(d.st.instance.offset))
	}
	if clip := [4]uint32{x, y, w, h}; !f.hasClip || f.scissor != clip {
		rp.SetScissorRect(x, y, w, h)
		f.scissor, f.hasClip = clip, true
	}
	if ref := int(d.st.stencil.Ref); f.ref != ref {
		rp.SetStencilReference(uint32(ref))
		f.ref = ref
	}
	inst := uint32(max(instances, 1))
	if indexed {
		rp.SetIndexBuffer(d.st.index.buf, d.st.index.format, 0)
		rp.DrawIndexed(uint32(count), inst, uint32(first), 0, 0)
		return
	}
	rp.Draw(uint32(count), inst, uint32(first), 0)
}

func (d *Device) Dispatch(x, y, z int) {
	p := d.st.program
	if p == nil || p.compute == nil {
		d.fail(errors.New("halgpu: dispatch with no compute program in use"))
		return
	}
	if x <= 0 || y <= 0 || z <= 0 {
		return
	}
	f := d.beginFrame()
	if f == nil {
		return
	}
	g, err := d.bindGroup(f, p, 0)
	if err != nil {
		d.fail(err)
		return
	}
	cp := d.computePass(f)
	cp.SetPipeline(p.compute)
	cp.SetBindGroup(0, g, nil)
	cp.Dispatch(uint32(x), uint32(y), uint32(z))
}

// Submit ends the open frame, submits it and waits for the GPU. It
// returns the first recording error since the previous Submit.
func (d *Device) Submit() error {
	err := d.err
	d.err = nil
	f := d.frame
	if f == nil {
		return err
	}
	d.frame = nil
	defer d.releaseFrame(f)

	f.endPasses()
	cmd, encErr := f.enc.EndEncoding()
	if encErr != nil {
		return errors.Join(err, fmt.Errorf("halgpu: end encoding: %w", encErr))
	}
	defer d.dev.FreeCommandBuffer(cmd)
	if subErr := d.submitWait(cmd); subErr != nil {
		return errors.Join(err, subErr)
	}
	slogger().Debug("halgpu: frame submitted",
		"groups", len(f.groups),
		"uniform_buffers", len(f.buffers))
	return err
}

func (d *Device) submitWait(cmd hal.CommandBuffer) error {
	fence, err := d.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("halgpu: create fence: %w", err)
	}
	defer d.dev.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return fmt.Errorf("halgpu: submit: %w", err)
	}
	ok, err := d.dev.Wait(fence, 1, d.opts.timeout)
	if err != nil {
		return fmt.Errorf("halgpu: wait: %w", err)
	}
	if !ok {
		return ErrTimeout
	}
	return nil
}

// run encodes fn into its own command buffer, submits it and waits.
func (d *Device) run(name string, fn func(enc hal.CommandEncoder)) error {
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: d.label(name)})
	if err != nil {
		return fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(d.label(name)); err != nil {
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	fn(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("halgpu: end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmd)
	return d.submitWait(cmd)
}

// releaseFrame destroys the objects f kept alive and drops the bind
// groups cached on programs.
func (d *Device) releaseFrame(f *frame) {
	f.release(d.dev)
	for _, p := range f.programs {
		d.releaseProgram(p)
	}
	for _, p := range d.programs {
		for _, s := range p.stages {
			s.ubuf, s.group = nil, nil
		}
	}
}

func (f *frame) release(dev hal.Device) {
	for _, g := range f.groups {
		dev.DestroyBindGroup(g)
	}
	for _, b := range f.buffers {
		dev.DestroyBuffer(b)
	}
	for _, t := range f.textures {
		dev.DestroyTextureView(t.view)
		dev.DestroyTexture(t.tex)
	}
	f.groups, f.buffers, f.textures = nil, nil, nil
}
