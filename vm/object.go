package vm

// ObjKind tags the concrete type of a heap object without needing a Go
// type switch in hot paths that only care about the tag.
type ObjKind byte

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
	ObjKindUpvalue
	ObjKindNative
)

// Header is embedded in every heap object. It carries the intrusive
// next-pointer the collector uses to walk every live allocation
// (vm.gc.head) and the mark bit the tri-color sweep flips.
type Header struct {
	Marked bool
	Next   Obj
}

// Obj is implemented by every heap-allocated object kind. Unlike the
// teacher's NaN-boxed uint64 payloads, these are ordinary Go pointers so
// the collector can hold and dereference them directly, and so Go's own
// runtime GC can see the exact same reference graph ours does.
type Obj interface {
	Kind() ObjKind
	objHeader() *Header
}

// ObjString is an interned, immutable string.
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind       { return ObjKindString }
func (s *ObjString) objHeader() *Header  { return &s.Header }

// ObjFunction is a compiled function body: its own chunk of bytecode plus
// arity and upvalue-count metadata the VM needs at call time.
type ObjFunction struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString // nil for the implicit top-level script function
}

func (f *ObjFunction) Kind() ObjKind      { return ObjKindFunction }
func (f *ObjFunction) objHeader() *Header { return &f.Header }

// ObjUpvalue references a variable captured by a closure. While Location
// points into a live stack slot the upvalue is "open"; close copies the
// value out of the stack into Closed and repoints Location at it.
type ObjUpvalue struct {
	Header
	Location *Value
	Closed   Value
	Next     *ObjUpvalue // links the VM's open-upvalue list, sorted by slot
	slot     int         // stack slot this upvalue watches while open
}

func (u *ObjUpvalue) Kind() ObjKind      { return ObjKindUpvalue }
func (u *ObjUpvalue) objHeader() *Header { return &u.Header }

func (u *ObjUpvalue) close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosure pairs a compiled function with the upvalues it captured at
// the point its closure expression was evaluated.
type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind      { return ObjKindClosure }
func (c *ObjClosure) objHeader() *Header { return &c.Header }

// NativeFn is the signature every builtin implements. Returning a non-nil
// error raises a runtime error at the call site.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host-implemented function so it can live in the
// globals table and be called like any other callable value.
type ObjNative struct {
	Header
	Name  string
	Arity int // -1 means variadic
	Fn    NativeFn
}

func (n *ObjNative) Kind() ObjKind      { return ObjKindNative }
func (n *ObjNative) objHeader() *Header { return &n.Header }
