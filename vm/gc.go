package vm

import (
	"unsafe"

	"go.uber.org/zap"
)

const gcHeapGrowFactor = 2

// Collector implements a precise, stop-the-world tri-color mark-sweep
// collector over the VM's intrusively linked heap object list. It never
// touches Go's own garbage collector's view of liveness; it exists so the
// language being interpreted has its own collection semantics (and its
// own GC pressure) independent of however much Go-level garbage the host
// process happens to produce.
type Collector struct {
	vm    *VM
	log   *zap.Logger
	stress bool

	head           Obj
	bytesAllocated int
	nextGC         int
	gray           []Obj

	// compileRoots anchors objects the compiler has allocated (e.g. a
	// not-yet-closed-over function constant) before they are reachable
	// from any running frame's stack or chunk.
	compileRoots []Obj
}

// NewCollector creates a collector with an initial collection threshold.
func NewCollector(vm *VM, log *zap.Logger, stress bool) *Collector {
	return &Collector{
		vm:     vm,
		log:    log,
		stress: stress,
		nextGC: 1024 * 1024,
	}
}

// objectSize estimates the byte footprint of a heap object for pacing
// purposes. It does not need to be exact, only monotonic with the real
// cost, since it only drives when the next collection triggers.
func objectSize(o Obj) int {
	switch v := o.(type) {
	case *ObjString:
		return int(unsafe.Sizeof(*v)) + len(v.Chars)
	case *ObjFunction:
		return int(unsafe.Sizeof(*v))
	case *ObjClosure:
		return int(unsafe.Sizeof(*v)) + len(v.Upvalues)*int(unsafe.Sizeof((*ObjUpvalue)(nil)))
	case *ObjUpvalue:
		return int(unsafe.Sizeof(*v))
	case *ObjNative:
		return int(unsafe.Sizeof(*v))
	default:
		return 64
	}
}

// track links a freshly allocated object into the heap list and runs a
// collection if the allocation pressure has crossed the threshold.
//
// track itself does not root o. A caller whose object isn't yet reachable
// through any stack slot, global, or chunk constant the mark phase would
// otherwise find (e.g. a string under construction) pushes it onto the VM
// stack before calling track and pops it after, as InternString does, so
// a GC triggered mid-allocation can't collect it out from under the caller.
func (gc *Collector) track(o Obj) {
	h := o.objHeader()
	h.Next = gc.head
	gc.head = o
	gc.bytesAllocated += objectSize(o)

	if gc.stress || gc.bytesAllocated > gc.nextGC {
		gc.collect()
	}
}

// PushCompileRoot anchors obj as a GC root for the duration of compiling
// a nested function, before its closure is reachable from any running
// frame.
func (gc *Collector) PushCompileRoot(obj Obj) {
	gc.compileRoots = append(gc.compileRoots, obj)
}

// PopCompileRoot releases the most recently pushed compile-time root.
func (gc *Collector) PopCompileRoot() {
	if len(gc.compileRoots) == 0 {
		return
	}
	gc.compileRoots = gc.compileRoots[:len(gc.compileRoots)-1]
}

// collect runs one full mark-sweep cycle.
func (gc *Collector) collect() {
	if gc.log != nil {
		gc.log.Debug("gc begin", zap.Int("bytesAllocated", gc.bytesAllocated))
	}

	gc.markRoots()
	gc.traceReferences()
	gc.vm.strings.RemoveWhite()
	gc.sweep()

	gc.nextGC = gc.bytesAllocated * gcHeapGrowFactor
	if gc.nextGC < 1024 {
		gc.nextGC = 1024
	}

	if gc.log != nil {
		gc.log.Debug("gc end", zap.Int("bytesAllocated", gc.bytesAllocated), zap.Int("nextGC", gc.nextGC))
	}
}

func (gc *Collector) markRoots() {
	vm := gc.vm
	for i := 0; i < vm.stackTop; i++ {
		gc.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		gc.markObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		gc.markObject(uv)
	}
	vm.globals.Each(func(key *ObjString, value Value) {
		gc.markObject(key)
		gc.markValue(value)
	})
	for _, root := range gc.compileRoots {
		gc.markObject(root)
	}
}

func (gc *Collector) markValue(v Value) {
	if v.IsObj() {
		gc.markObject(v.AsObj())
	}
}

func (gc *Collector) markObject(o Obj) {
	if o == nil {
		return
	}
	h := o.objHeader()
	if h.Marked {
		return
	}
	h.Marked = true
	gc.gray = append(gc.gray, o)
}

func (gc *Collector) traceReferences() {
	for len(gc.gray) > 0 {
		o := gc.gray[len(gc.gray)-1]
		gc.gray = gc.gray[:len(gc.gray)-1]
		gc.blacken(o)
	}
}

func (gc *Collector) blacken(o Obj) {
	switch obj := o.(type) {
	case *ObjString:
		// no outgoing references
	case *ObjNative:
		// no outgoing references
	case *ObjUpvalue:
		gc.markValue(*obj.Location)
	case *ObjFunction:
		gc.markObject(obj.Name)
		for _, c := range obj.Chunk.Constants {
			gc.markValue(c)
		}
	case *ObjClosure:
		gc.markObject(obj.Function)
		for _, uv := range obj.Upvalues {
			gc.markObject(uv)
		}
	}
}

// sweep walks the intrusive heap list, unlinking and dropping every
// object that wasn't marked reachable this cycle, and clears the mark bit
// on survivors for the next cycle.
func (gc *Collector) sweep() {
	var prev Obj
	obj := gc.head
	for obj != nil {
		h := obj.objHeader()
		if h.Marked {
			h.Marked = false
			prev = obj
			obj = h.Next
			continue
		}

		unreached := obj
		obj = h.Next
		gc.bytesAllocated -= objectSize(unreached)
		if prev == nil {
			gc.head = obj
		} else {
			prev.objHeader().Next = obj
		}
	}
}
