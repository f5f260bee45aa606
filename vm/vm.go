package vm

import (
	"fmt"
	"hash/fnv"

	"go.uber.org/zap"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the base stack slot its locals start at.
type CallFrame struct {
	closure   *ObjClosure
	ip        int
	slotsBase int
}

// VM is the bytecode interpreter: a value stack, a call-frame stack, the
// globals and string-intern tables, the open-upvalue list, and the
// collector that owns every heap object any of the above can reach.
type VM struct {
	stack      [stackMax]Value
	stackTop   int
	frames     [framesMax]CallFrame
	frameCount int

	openUpvalues *ObjUpvalue
	globals      *Table
	strings      *Table
	gc           *Collector

	log   *zap.Logger
	trace bool

	stdout func(string)
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLogger attaches a zap logger used for GC and (when enabled) trace
// diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithTrace enables per-instruction execution tracing to the logger.
func WithTrace(enabled bool) Option {
	return func(vm *VM) { vm.trace = enabled }
}

// WithGCStress forces a collection before every single allocation, used
// to shake out mark/sweep bugs under testing.
func WithGCStress(enabled bool) Option {
	return func(vm *VM) {
		if vm.gc != nil {
			vm.gc.stress = enabled
		}
	}
}

// WithStdout overrides where 'print' writes; defaults to the process's
// stdout via fmt.Print.
func WithStdout(fn func(string)) Option {
	return func(vm *VM) { vm.stdout = fn }
}

// New constructs a ready-to-run VM whose globals hold only the native
// functions (clock, len).
func New(opts ...Option) *VM {
	vm := &VM{
		globals: NewTable(),
		strings: NewTable(),
		stdout:  func(s string) { fmt.Print(s) },
	}
	vm.gc = NewCollector(vm, nil, false)
	for _, opt := range opts {
		opt(vm)
	}
	vm.gc.log = vm.log
	vm.globals.SetLogger(vm.log)
	vm.strings.SetLogger(vm.log)
	vm.defineNatives()
	return vm
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// InternString returns the canonical ObjString for chars, allocating and
// interning a new one only if an equal string isn't already pooled.
func (vm *VM) InternString(chars string) *ObjString {
	hash := fnvHash(chars)
	if existing := vm.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &ObjString{Chars: chars, Hash: hash}
	// Anchor on the stack before tracking: interning itself can trigger a
	// collection, and until the table insert below completes this string
	// is reachable from nowhere else.
	vm.push(NewObj(s))
	vm.gc.track(s)
	vm.strings.Set(s, NewBool(true))
	vm.pop()
	return s
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// NewFunction allocates an empty, not-yet-populated function object. The
// compiler fills in Arity/Chunk/Name/UpvalueCount as it compiles the body.
func (vm *VM) NewFunction() *ObjFunction {
	fn := &ObjFunction{Chunk: NewChunk()}
	vm.gc.track(fn)
	return fn
}

// NewNative wraps fn as a callable native value and tracks it on the heap.
func (vm *VM) NewNative(name string, arity int, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Arity: arity, Fn: fn}
	vm.gc.track(n)
	return n
}

// newClosure wraps fn with an upvalue slice sized to fn.UpvalueCount; the
// slots start nil and OP_CLOSURE fills them in.
func (vm *VM) newClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	vm.gc.track(c)
	return c
}

// PushCompileRoot / PopCompileRoot let the compiler anchor an
// in-progress function object across allocations that might trigger GC
// before the function is reachable from any chunk or frame.
func (vm *VM) PushCompileRoot(obj Obj) { vm.gc.PushCompileRoot(obj) }
func (vm *VM) PopCompileRoot()         { vm.gc.PopCompileRoot() }

// Globals exposes the globals table for native-function wiring.
func (vm *VM) Globals() *Table { return vm.globals }

// DefineGlobal installs a global directly (used to register natives).
func (vm *VM) DefineGlobal(name string, value Value) {
	vm.globals.Set(vm.InternString(name), value)
}

// Run executes a top-level compiled function to completion. fn must have
// been produced by the compiler against this same VM (so its constants
// were interned/allocated here).
func (vm *VM) Run(fn *ObjFunction) error {
	vm.resetStack()
	closure := vm.newClosure(fn)
	vm.push(NewObj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) run() error {
	for {
		frame := &vm.frames[vm.frameCount-1]

		if vm.trace && vm.log != nil {
			line, _ := frame.closure.Function.Chunk.disassembleInstruction(frame.ip)
			vm.log.Debug("trace", zap.String("instr", line), zap.Int("stackDepth", vm.stackTop))
		}

		op := OpCode(vm.readByte(frame))
		switch op {
		case OpConstant:
			idx := vm.readByte(frame)
			vm.push(frame.closure.Function.Chunk.Constants[idx])
		case OpConstantLong:
			idx := vm.readU24(frame)
			vm.push(frame.closure.Function.Chunk.Constants[idx])
		case OpNil:
			vm.push(Nil)
		case OpTrue:
			vm.push(NewBool(true))
		case OpFalse:
			vm.push(NewBool(false))
		case OpPop:
			vm.pop()
		case OpGetLocal:
			slot := vm.readByte(frame)
			vm.push(vm.stack[frame.slotsBase+int(slot)])
		case OpSetLocal:
			slot := vm.readByte(frame)
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)
		case OpGetGlobal:
			name := frame.closure.Function.Chunk.Constants[vm.readByte(frame)].AsString()
			val, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}
			vm.push(val)
		case OpDefineGlobal:
			name := frame.closure.Function.Chunk.Constants[vm.readByte(frame)].AsString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case OpSetGlobal:
			name := frame.closure.Function.Chunk.Constants[vm.readByte(frame)].AsString()
			if isNew := vm.globals.Set(name, vm.peek(0)); isNew {
				vm.globals.Delete(name)
				return vm.runtimeError("undefined variable '%s'", name.Chars)
			}
		case OpGetUpvalue:
			slot := vm.readByte(frame)
			vm.push(*frame.closure.Upvalues[slot].Location)
		case OpSetUpvalue:
			slot := vm.readByte(frame)
			*frame.closure.Upvalues[slot].Location = vm.peek(0)
		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(NewBool(a.Equals(b)))
		case OpGreater, OpLess:
			if err := vm.binaryCompare(op); err != nil {
				return err
			}
		case OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case OpSubtract, OpMultiply, OpDivide:
			if err := vm.binaryArith(op); err != nil {
				return err
			}
		case OpNot:
			vm.push(NewBool(vm.pop().IsFalsey()))
		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("operand must be a number")
			}
			vm.push(NewNumber(-vm.pop().AsNumber()))
		case OpPrint:
			vm.stdout(vm.pop().String() + "\n")
		case OpJump:
			offset := vm.readU16(frame)
			frame.ip += offset
		case OpJumpIfFalse:
			offset := vm.readU16(frame)
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case OpLoop:
			offset := vm.readU16(frame)
			frame.ip -= offset
		case OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]
		case OpClosure:
			fn := frame.closure.Function.Chunk.Constants[vm.readByte(frame)].AsObj().(*ObjFunction)
			closure := vm.newClosure(fn)
			vm.push(NewObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()
		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readU16(frame *CallFrame) int {
	hi := vm.readByte(frame)
	lo := vm.readByte(frame)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readU24(frame *CallFrame) int {
	b0 := vm.readByte(frame)
	b1 := vm.readByte(frame)
	b2 := vm.readByte(frame)
	return int(b0) | int(b1)<<8 | int(b2)<<16
}

func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(NewNumber(a.AsNumber() + b.AsNumber()))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		vm.push(NewObj(vm.InternString(a.AsString().Chars + b.AsString().Chars)))
	default:
		return vm.runtimeError("operands must be two numbers or two strings")
	}
	return nil
}

func (vm *VM) binaryArith(op OpCode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case OpSubtract:
		vm.push(NewNumber(a - b))
	case OpMultiply:
		vm.push(NewNumber(a * b))
	case OpDivide:
		if b == 0 {
			return vm.runtimeError("division by zero")
		}
		vm.push(NewNumber(a / b))
	}
	return nil
}

func (vm *VM) binaryCompare(op OpCode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case OpGreater:
		vm.push(NewBool(a > b))
	case OpLess:
		vm.push(NewBool(a < b))
	}
	return nil
}

func (vm *VM) callValue(callee Value, argCount int) error {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *ObjClosure:
			return vm.call(obj, argCount)
		case *ObjNative:
			if obj.Arity >= 0 && argCount != obj.Arity {
				return vm.runtimeError("expected %d arguments but got %d", obj.Arity, argCount)
			}
			args := make([]Value, argCount)
			copy(args, vm.stack[vm.stackTop-argCount:vm.stackTop])
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError("can only call functions")
}

func (vm *VM) call(closure *ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argCount)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("stack overflow")
	}
	frame := &vm.frames[vm.frameCount]
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	vm.frameCount++
	return nil
}

// captureUpvalue returns the open upvalue already watching slot, or
// creates and links a new one in descending-slot order so the list stays
// easy to scan and multiple closures over the same local share one
// upvalue object.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	uv := vm.openUpvalues
	for uv != nil && uv.slot > slot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.slot == slot {
		return uv
	}

	created := &ObjUpvalue{Location: &vm.stack[slot], slot: slot, Next: uv}
	vm.gc.track(created)
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue watching a slot at or above
// last, copying each one's value out of the stack before that stack
// region is discarded.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.slot >= last {
		uv := vm.openUpvalues
		uv.close()
		vm.openUpvalues = uv.Next
	}
}
