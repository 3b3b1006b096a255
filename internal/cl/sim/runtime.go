// Package sim provides a pure-Go simulated accelerator runtime. It exposes a
// configurable platform/device topology, a front end that rejects malformed
// kernel source with a build log, and an in-order queue that runs kernels
// implemented in Go.
package sim

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cwbudde/clsession/internal/cl"
)

// Name is the registry name of the simulated runtime.
const Name = "sim"

func init() {
	cl.Register(Name, func(config string) (cl.Runtime, error) {
		if config == "" {
			return New(DefaultTopology()), nil
		}
		topo, err := LoadTopology(config)
		if err != nil {
			return nil, err
		}
		return New(topo), nil
	})
}

// Compile-time check.
var _ cl.Runtime = (*Runtime)(nil)

// Runtime is a simulated cl.Runtime. It is safe for concurrent use.
type Runtime struct {
	mu         sync.Mutex
	nextHandle uintptr

	platforms []*platform
	platform  map[cl.PlatformID]*platform
	device    map[cl.DeviceID]*device

	contexts map[cl.Context]*context
	queues   map[cl.Queue]*queue
	programs map[cl.Program]*program
	kernels  map[cl.Kernel]*kernel
	mems     map[cl.Mem]*memObject

	impls    map[string]KernelFunc
	failures map[string]cl.Status
}

type platform struct {
	id      cl.PlatformID
	spec    PlatformSpec
	devices []*device
}

type device struct {
	id   cl.DeviceID
	spec DeviceSpec
}

type context struct {
	device    *device
	props     []cl.ContextProperty
	allocated uint64
}

type queue struct {
	ctx     *context
	device  *device
	pending []dispatch
}

type program struct {
	ctx     *context
	source  string
	built   bool
	log     string
	kernels map[string]*kernelDecl
}

type kernel struct {
	program *program
	decl    *kernelDecl
	args    []boundArg
}

type boundArg struct {
	set   bool
	mem   *memObject
	value []byte
}

type memObject struct {
	ctx      *context
	flags    cl.MemFlags
	data     []byte
	released bool
}

type dispatch struct {
	name   string
	impl   KernelFunc
	args   []Arg
	global int
	local  int
}

// New creates a simulated runtime exposing topo.
func New(topo Topology) *Runtime {
	rt := &Runtime{
		nextHandle: 0x1000,
		platform:   make(map[cl.PlatformID]*platform),
		device:     make(map[cl.DeviceID]*device),
		contexts:   make(map[cl.Context]*context),
		queues:     make(map[cl.Queue]*queue),
		programs:   make(map[cl.Program]*program),
		kernels:    make(map[cl.Kernel]*kernel),
		mems:       make(map[cl.Mem]*memObject),
		impls:      make(map[string]KernelFunc),
		failures:   make(map[string]cl.Status),
	}
	for name, fn := range builtinKernels {
		rt.impls[name] = fn
	}

	for _, ps := range topo.withDefaults().Platforms {
		p := &platform{id: cl.PlatformID(rt.handle()), spec: ps}
		for _, ds := range ps.Devices {
			d := &device{id: cl.DeviceID(rt.handle()), spec: ds}
			p.devices = append(p.devices, d)
			rt.device[d.id] = d
		}
		rt.platforms = append(rt.platforms, p)
		rt.platform[p.id] = p
	}
	return rt
}

// Name implements cl.Runtime.
func (rt *Runtime) Name() string { return Name }

// RegisterKernel installs the Go implementation used when a kernel called
// name is dispatched. It replaces any previous implementation.
func (rt *Runtime) RegisterKernel(name string, fn KernelFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.impls[name] = fn
}

// FailNext makes the next call of the named runtime method (e.g. "CreateBuffer")
// fail with status. Used to exercise error paths.
func (rt *Runtime) FailNext(op string, status cl.Status) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.failures[op] = status
}

// LiveObjects counts contexts, queues, programs, kernels and buffers that have
// not been released.
func (rt *Runtime) LiveObjects() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.contexts) + len(rt.queues) + len(rt.programs) + len(rt.kernels) + len(rt.mems)
}

func (rt *Runtime) handle() uintptr {
	rt.nextHandle++
	return rt.nextHandle
}

// injected returns the injected failure for op, consuming it.
func (rt *Runtime) injected(op string) error {
	status, ok := rt.failures[op]
	if !ok {
		return nil
	}
	delete(rt.failures, op)
	return cl.NewStatusError(op, status)
}

func (rt *Runtime) PlatformIDs() ([]cl.PlatformID, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("PlatformIDs"); err != nil {
		return nil, err
	}
	if len(rt.platforms) == 0 {
		return nil, cl.NewStatusError("PlatformIDs", cl.StatusPlatformNotFoundKHR)
	}
	ids := make([]cl.PlatformID, len(rt.platforms))
	for i, p := range rt.platforms {
		ids[i] = p.id
	}
	return ids, nil
}

func (rt *Runtime) DeviceIDs(id cl.PlatformID) ([]cl.DeviceID, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("DeviceIDs"); err != nil {
		return nil, err
	}
	p, ok := rt.platform[id]
	if !ok {
		return nil, cl.NewStatusError("DeviceIDs", cl.StatusInvalidPlatform)
	}
	if len(p.devices) == 0 {
		return nil, cl.NewStatusError("DeviceIDs", cl.StatusDeviceNotFound)
	}
	ids := make([]cl.DeviceID, len(p.devices))
	for i, d := range p.devices {
		ids[i] = d.id
	}
	return ids, nil
}

func (rt *Runtime) PlatformProperty(id cl.PlatformID, param cl.PlatformParam) ([]byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	p, ok := rt.platform[id]
	if !ok {
		return nil, cl.NewStatusError("PlatformProperty", cl.StatusInvalidPlatform)
	}
	switch param {
	case cl.PlatformProfile:
		return cl.EncodeString(p.spec.Profile), nil
	case cl.PlatformVersion:
		return cl.EncodeString(p.spec.Version), nil
	case cl.PlatformName:
		return cl.EncodeString(p.spec.Name), nil
	case cl.PlatformVendor:
		return cl.EncodeString(p.spec.Vendor), nil
	case cl.PlatformExtensions:
		return cl.EncodeString(strings.Join(p.spec.Extensions, " ")), nil
	default:
		return nil, cl.NewStatusError("PlatformProperty", cl.StatusInvalidValue)
	}
}

func (rt *Runtime) DeviceProperty(id cl.DeviceID, param cl.DeviceParam) ([]byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	d, ok := rt.device[id]
	if !ok {
		return nil, cl.NewStatusError("DeviceProperty", cl.StatusInvalidDevice)
	}
	s := d.spec
	switch param {
	case cl.DeviceName:
		return cl.EncodeString(s.Name), nil
	case cl.DeviceVendor:
		return cl.EncodeString(s.Vendor), nil
	case cl.DriverVersion:
		return cl.EncodeString(s.DriverVersion), nil
	case cl.DeviceProfile:
		return cl.EncodeString(s.Profile), nil
	case cl.DeviceVersion:
		return cl.EncodeString(s.Version), nil
	case cl.DeviceOpenCLCVersion:
		return cl.EncodeString(s.OpenCLCVersion), nil
	case cl.DeviceExtensions:
		return cl.EncodeString(strings.Join(s.Extensions, " ")), nil
	}

	var v uint64
	switch param {
	case cl.DeviceTypeBitfield:
		v = cl.DeviceTypeBits(s.Type)
	case cl.DeviceMaxComputeUnits:
		v = uint64(s.ComputeUnits)
	case cl.DeviceMaxClockFrequency:
		v = uint64(s.MaxClockMHz)
	case cl.DeviceMaxWorkGroupSize:
		v = s.MaxWorkGroupSize
	case cl.DeviceGlobalMemSize:
		v = s.GlobalMemSize
	case cl.DeviceMaxConstantBufferSize:
		v = s.MaxConstantBufferSize
	default:
		return nil, cl.NewStatusError("DeviceProperty", cl.StatusInvalidValue)
	}
	prop, _ := param.Describe()
	raw, err := cl.EncodeUint(prop.Kind, v)
	if err != nil {
		return nil, cl.NewStatusError("DeviceProperty", cl.StatusInvalidValue)
	}
	return raw, nil
}

func (rt *Runtime) CreateContext(id cl.DeviceID, props []cl.ContextProperty) (cl.Context, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("CreateContext"); err != nil {
		return 0, err
	}
	d, ok := rt.device[id]
	if !ok {
		return 0, cl.NewStatusError("CreateContext", cl.StatusInvalidDevice)
	}
	for _, prop := range props {
		if prop.Key != cl.ContextPlatform {
			return 0, cl.NewStatusError("CreateContext", cl.StatusInvalidProperty)
		}
		p, ok := rt.platform[cl.PlatformID(prop.Value)]
		if !ok || !p.hosts(d) {
			return 0, cl.NewStatusError("CreateContext", cl.StatusInvalidPlatform)
		}
	}
	h := cl.Context(rt.handle())
	rt.contexts[h] = &context{device: d, props: props}
	return h, nil
}

func (p *platform) hosts(d *device) bool {
	for _, candidate := range p.devices {
		if candidate == d {
			return true
		}
	}
	return false
}

func (rt *Runtime) CreateQueue(ctxID cl.Context, id cl.DeviceID) (cl.Queue, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("CreateQueue"); err != nil {
		return 0, err
	}
	ctx, ok := rt.contexts[ctxID]
	if !ok {
		return 0, cl.NewStatusError("CreateQueue", cl.StatusInvalidContext)
	}
	d, ok := rt.device[id]
	if !ok || d != ctx.device {
		return 0, cl.NewStatusError("CreateQueue", cl.StatusInvalidDevice)
	}
	h := cl.Queue(rt.handle())
	rt.queues[h] = &queue{ctx: ctx, device: d}
	return h, nil
}

func (rt *Runtime) CreateProgramWithSource(ctxID cl.Context, source string) (cl.Program, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	ctx, ok := rt.contexts[ctxID]
	if !ok {
		return 0, cl.NewStatusError("CreateProgramWithSource", cl.StatusInvalidContext)
	}
	if source == "" {
		return 0, cl.NewStatusError("CreateProgramWithSource", cl.StatusInvalidValue)
	}
	h := cl.Program(rt.handle())
	rt.programs[h] = &program{ctx: ctx, source: source}
	return h, nil
}

func (rt *Runtime) BuildProgram(id cl.Program, devID cl.DeviceID, options string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	p, ok := rt.programs[id]
	if !ok {
		return cl.NewStatusError("BuildProgram", cl.StatusInvalidProgram)
	}
	if d, ok := rt.device[devID]; !ok || d != p.ctx.device {
		return cl.NewStatusError("BuildProgram", cl.StatusInvalidDevice)
	}
	if strings.TrimSpace(options) != "" {
		p.log = fmt.Sprintf("error: unsupported build options %q\n", options)
		return cl.NewStatusError("BuildProgram", cl.StatusBuildProgramFailure)
	}

	kernels, log := compile(p.source)
	p.log = log
	if log != "" {
		p.built = false
		return cl.NewStatusError("BuildProgram", cl.StatusBuildProgramFailure)
	}
	p.kernels = kernels
	p.built = true
	return nil
}

func (rt *Runtime) ProgramBuildLog(id cl.Program, devID cl.DeviceID) ([]byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	p, ok := rt.programs[id]
	if !ok {
		return nil, cl.NewStatusError("ProgramBuildLog", cl.StatusInvalidProgram)
	}
	if _, ok := rt.device[devID]; !ok {
		return nil, cl.NewStatusError("ProgramBuildLog", cl.StatusInvalidDevice)
	}
	return cl.EncodeString(p.log), nil
}

func (rt *Runtime) CreateKernel(id cl.Program, name string) (cl.Kernel, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	p, ok := rt.programs[id]
	if !ok {
		return 0, cl.NewStatusError("CreateKernel", cl.StatusInvalidProgram)
	}
	if !p.built {
		return 0, cl.NewStatusError("CreateKernel", cl.StatusInvalidProgramExecutable)
	}
	decl, ok := p.kernels[name]
	if !ok {
		return 0, cl.NewStatusError("CreateKernel", cl.StatusInvalidKernelName)
	}
	h := cl.Kernel(rt.handle())
	rt.kernels[h] = &kernel{program: p, decl: decl, args: make([]boundArg, len(decl.params))}
	return h, nil
}

func (rt *Runtime) SetKernelArgMem(id cl.Kernel, index uint32, memID cl.Mem) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	k, err := rt.kernelArg(id, index, "SetKernelArgMem")
	if err != nil {
		return err
	}
	if !k.decl.params[index].Pointer {
		return cl.NewStatusError("SetKernelArgMem", cl.StatusInvalidArgValue)
	}
	m, ok := rt.mems[memID]
	if !ok || m.ctx != k.program.ctx {
		return cl.NewStatusError("SetKernelArgMem", cl.StatusInvalidMemObject)
	}
	k.args[index] = boundArg{set: true, mem: m}
	return nil
}

func (rt *Runtime) SetKernelArgBytes(id cl.Kernel, index uint32, value []byte) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	k, err := rt.kernelArg(id, index, "SetKernelArgBytes")
	if err != nil {
		return err
	}
	param := k.decl.params[index]
	if param.Pointer {
		return cl.NewStatusError("SetKernelArgBytes", cl.StatusInvalidArgValue)
	}
	if len(value) != param.ElemSize {
		return cl.NewStatusError("SetKernelArgBytes", cl.StatusInvalidArgSize)
	}
	k.args[index] = boundArg{set: true, value: append([]byte(nil), value...)}
	return nil
}

func (rt *Runtime) kernelArg(id cl.Kernel, index uint32, op string) (*kernel, error) {
	if err := rt.injected(op); err != nil {
		return nil, err
	}
	k, ok := rt.kernels[id]
	if !ok {
		return nil, cl.NewStatusError(op, cl.StatusInvalidKernel)
	}
	if int(index) >= len(k.decl.params) {
		return nil, cl.NewStatusError(op, cl.StatusInvalidArgIndex)
	}
	return k, nil
}

func (rt *Runtime) EnqueueNDRange(qID cl.Queue, kID cl.Kernel, global, local int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("EnqueueNDRange"); err != nil {
		return err
	}
	q, ok := rt.queues[qID]
	if !ok {
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidCommandQueue)
	}
	k, ok := rt.kernels[kID]
	if !ok {
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidKernel)
	}
	if k.program.ctx != q.ctx {
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidContext)
	}
	if global <= 0 {
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidGlobalWorkSize)
	}
	if local <= 0 || global%local != 0 || uint64(local) > q.device.spec.MaxWorkGroupSize {
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidWorkGroupSize)
	}

	args := make([]Arg, len(k.args))
	for i, a := range k.args {
		if !a.set {
			return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidKernelArgs)
		}
		args[i] = Arg{Param: k.decl.params[i]}
		if a.mem != nil {
			args[i].Data = a.mem.data
		} else {
			args[i].Data = append([]byte(nil), a.value...)
		}
	}

	impl, ok := rt.impls[k.decl.name]
	if !ok {
		slog.Warn("No implementation registered for simulated kernel", "kernel", k.decl.name)
		return cl.NewStatusError("EnqueueNDRange", cl.StatusInvalidKernel)
	}

	q.pending = append(q.pending, dispatch{name: k.decl.name, impl: impl, args: args, global: global, local: local})
	return nil
}

func (rt *Runtime) Finish(qID cl.Queue) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	q, ok := rt.queues[qID]
	if !ok {
		return cl.NewStatusError("Finish", cl.StatusInvalidCommandQueue)
	}
	return rt.drain(q, "Finish")
}

// drain executes every pending dispatch of q in submission order.
func (rt *Runtime) drain(q *queue, op string) error {
	pending := q.pending
	q.pending = nil
	for _, d := range pending {
		if err := d.run(); err != nil {
			slog.Error("Simulated kernel failed", "kernel", d.name, "error", err.Error())
			return cl.NewStatusError(op, cl.StatusOutOfResources)
		}
	}
	return nil
}

func (d dispatch) run() error {
	for gid := 0; gid < d.global; gid++ {
		item := WorkItem{
			GlobalID:   gid,
			LocalID:    gid % d.local,
			GroupID:    gid / d.local,
			GlobalSize: d.global,
			LocalSize:  d.local,
		}
		if err := d.impl(item, d.args); err != nil {
			return errors.Wrapf(err, "kernel %s", d.name)
		}
	}
	return nil
}

func (rt *Runtime) CreateBuffer(ctxID cl.Context, flags cl.MemFlags, size int) (cl.Mem, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("CreateBuffer"); err != nil {
		return 0, err
	}
	ctx, ok := rt.contexts[ctxID]
	if !ok {
		return 0, cl.NewStatusError("CreateBuffer", cl.StatusInvalidContext)
	}
	if size <= 0 {
		return 0, cl.NewStatusError("CreateBuffer", cl.StatusInvalidBufferSize)
	}
	if ctx.allocated+uint64(size) > ctx.device.spec.GlobalMemSize {
		return 0, cl.NewStatusError("CreateBuffer", cl.StatusMemObjectAllocationFailure)
	}
	ctx.allocated += uint64(size)
	h := cl.Mem(rt.handle())
	rt.mems[h] = &memObject{ctx: ctx, flags: flags, data: make([]byte, size)}
	return h, nil
}

func (rt *Runtime) WriteBuffer(qID cl.Queue, memID cl.Mem, data []byte) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("WriteBuffer"); err != nil {
		return err
	}
	q, m, err := rt.transfer(qID, memID, len(data), "WriteBuffer")
	if err != nil {
		return err
	}
	if err := rt.drain(q, "WriteBuffer"); err != nil {
		return err
	}
	copy(m.data, data)
	return nil
}

func (rt *Runtime) ReadBuffer(qID cl.Queue, memID cl.Mem, dst []byte) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.injected("ReadBuffer"); err != nil {
		return err
	}
	q, m, err := rt.transfer(qID, memID, len(dst), "ReadBuffer")
	if err != nil {
		return err
	}
	if err := rt.drain(q, "ReadBuffer"); err != nil {
		return err
	}
	copy(dst, m.data)
	return nil
}

func (rt *Runtime) transfer(qID cl.Queue, memID cl.Mem, size int, op string) (*queue, *memObject, error) {
	q, ok := rt.queues[qID]
	if !ok {
		return nil, nil, cl.NewStatusError(op, cl.StatusInvalidCommandQueue)
	}
	m, ok := rt.mems[memID]
	if !ok || m.ctx != q.ctx {
		return nil, nil, cl.NewStatusError(op, cl.StatusInvalidMemObject)
	}
	if size > len(m.data) {
		return nil, nil, cl.NewStatusError(op, cl.StatusInvalidValue)
	}
	return q, m, nil
}

func (rt *Runtime) ReleaseMem(id cl.Mem) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	m, ok := rt.mems[id]
	if !ok {
		return cl.NewStatusError("ReleaseMem", cl.StatusInvalidMemObject)
	}
	m.released = true
	m.ctx.allocated -= uint64(len(m.data))
	delete(rt.mems, id)
	return nil
}

func (rt *Runtime) ReleaseKernel(id cl.Kernel) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.kernels[id]; !ok {
		return cl.NewStatusError("ReleaseKernel", cl.StatusInvalidKernel)
	}
	delete(rt.kernels, id)
	return nil
}

func (rt *Runtime) ReleaseProgram(id cl.Program) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.programs[id]; !ok {
		return cl.NewStatusError("ReleaseProgram", cl.StatusInvalidProgram)
	}
	delete(rt.programs, id)
	return nil
}

func (rt *Runtime) ReleaseQueue(id cl.Queue) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	q, ok := rt.queues[id]
	if !ok {
		return cl.NewStatusError("ReleaseQueue", cl.StatusInvalidCommandQueue)
	}
	// Releasing a queue flushes outstanding work first.
	if err := rt.drain(q, "ReleaseQueue"); err != nil {
		slog.Warn("Dropping failed work on queue release", "error", err)
	}
	delete(rt.queues, id)
	return nil
}

func (rt *Runtime) ReleaseContext(id cl.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.contexts[id]; !ok {
		return cl.NewStatusError("ReleaseContext", cl.StatusInvalidContext)
	}
	delete(rt.contexts, id)
	return nil
}
