package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func heapObjects(gc *Collector) []Obj {
	var objs []Obj
	for o := gc.head; o != nil; o = o.objHeader().Next {
		objs = append(objs, o)
	}
	return objs
}

func containsObj(objs []Obj, target Obj) bool {
	for _, o := range objs {
		if o == target {
			return true
		}
	}
	return false
}

func TestCollectorSweepsUnreachableObjects(t *testing.T) {
	machine := New()

	kept := machine.InternString("kept")
	machine.push(NewObj(kept)) // rooted: lives on the value stack

	unreachable := &ObjString{Chars: "gone", Hash: fnvHash("gone")}
	machine.gc.track(unreachable) // heap-tracked but reachable from nowhere

	before := heapObjects(machine.gc)
	assert.True(t, containsObj(before, kept))
	assert.True(t, containsObj(before, unreachable))

	machine.gc.collect()

	after := heapObjects(machine.gc)
	assert.True(t, containsObj(after, kept), "stack-rooted object must survive")
	assert.False(t, containsObj(after, unreachable), "unrooted object must be swept")

	assert.False(t, kept.Marked, "mark bit must be cleared after sweep for the next cycle")
}

func TestCollectorMarksGlobalsAndClearsInternPool(t *testing.T) {
	machine := New()

	name := machine.InternString("pi")
	machine.globals.Set(name, NewNumber(3.14))

	orphanString := machine.InternString("orphan")
	machine.strings.Delete(orphanString) // still heap-linked, no longer referenced by the pool or any root

	machine.gc.collect()

	val, ok := machine.globals.Get(name)
	assert.True(t, ok)
	assert.Equal(t, 3.14, val.AsNumber())

	after := heapObjects(machine.gc)
	assert.False(t, containsObj(after, orphanString))
}

func TestCollectorCompileRootsSurviveCollection(t *testing.T) {
	machine := New()

	fn := &ObjFunction{Chunk: NewChunk()}
	machine.gc.track(fn)
	machine.PushCompileRoot(fn)

	machine.gc.collect()
	after := heapObjects(machine.gc)
	assert.True(t, containsObj(after, fn))

	machine.PopCompileRoot()
	machine.gc.collect()
	after = heapObjects(machine.gc)
	assert.False(t, containsObj(after, fn))
}

func TestCollectorGCStressRunsWithoutPanicking(t *testing.T) {
	machine := New(WithGCStress(true))
	for i := 0; i < 50; i++ {
		machine.InternString("s")
	}
}
