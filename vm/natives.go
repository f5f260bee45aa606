package vm

import (
	"errors"
	"time"
)

// defineNatives installs the small set of host-provided builtins every
// script starts with.
func (vm *VM) defineNatives() {
	vm.registerNative("clock", 0, nativeClock)
	vm.registerNative("len", 1, nativeLen)
}

func (vm *VM) registerNative(name string, arity int, fn NativeFn) {
	native := vm.NewNative(name, arity, fn)
	vm.DefineGlobal(name, NewObj(native))
}

// nativeClock returns the number of seconds since the Unix epoch as a
// float, the way the interpreter's host language exposes wall-clock time
// for benchmarking scripts.
func nativeClock(args []Value) (Value, error) {
	return NewNumber(float64(time.Now().UnixNano()) / 1e9), nil
}

// nativeLen reports the length of a string argument.
func nativeLen(args []Value) (Value, error) {
	if !args[0].IsString() {
		return Nil, errors.New("len() argument must be a string")
	}
	return NewNumber(float64(len(args[0].AsString().Chars))), nil
}
