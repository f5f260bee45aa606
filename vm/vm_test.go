package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// script builds a top-level ObjFunction directly out of a sequence of
// chunk-building calls, bypassing the compiler so these tests exercise
// the interpreter loop in isolation.
func script(machine *VM, build func(c *Chunk)) *ObjFunction {
	fn := machine.NewFunction()
	build(fn.Chunk)
	return fn
}

func TestVMArithmetic(t *testing.T) {
	var printed string
	machine := New(WithStdout(func(s string) { printed += s }))

	fn := script(machine, func(c *Chunk) {
		c.WriteConstant(NewNumber(1), 1)
		c.WriteConstant(NewNumber(2), 1)
		c.WriteOp(OpAdd, 1)
		c.WriteConstant(NewNumber(3), 1)
		c.WriteOp(OpMultiply, 1)
		c.WriteOp(OpPrint, 1)
		c.WriteOp(OpNil, 1)
		c.WriteOp(OpReturn, 1)
	})

	err := machine.Run(fn)
	assert.NoError(t, err)
	assert.Equal(t, "9\n", printed)
}

func TestVMStringConcatenation(t *testing.T) {
	var printed string
	machine := New(WithStdout(func(s string) { printed += s }))

	fn := script(machine, func(c *Chunk) {
		c.WriteConstant(NewObj(machine.InternString("how ")), 1)
		c.WriteConstant(NewObj(machine.InternString("far")), 1)
		c.WriteOp(OpAdd, 1)
		c.WriteOp(OpPrint, 1)
		c.WriteOp(OpNil, 1)
		c.WriteOp(OpReturn, 1)
	})

	err := machine.Run(fn)
	assert.NoError(t, err)
	assert.Equal(t, "how far\n", printed)
}

func TestVMGlobalsDefineGetSet(t *testing.T) {
	var printed string
	machine := New(WithStdout(func(s string) { printed += s }))

	fn := script(machine, func(c *Chunk) {
		nameIdx := c.AddConstant(NewObj(machine.InternString("x")))
		c.WriteConstant(NewNumber(1), 1)
		c.WriteOp(OpDefineGlobal, 1)
		c.Write(byte(nameIdx), 1)

		c.WriteConstant(NewNumber(41), 1)
		c.WriteOp(OpSetGlobal, 1)
		c.Write(byte(nameIdx), 1)
		c.WriteOp(OpPop, 1)

		c.WriteOp(OpGetGlobal, 1)
		c.Write(byte(nameIdx), 1)
		c.WriteOp(OpPrint, 1)
		c.WriteOp(OpNil, 1)
		c.WriteOp(OpReturn, 1)
	})

	err := machine.Run(fn)
	assert.NoError(t, err)
	assert.Equal(t, "41\n", printed)
}

func TestVMUndefinedGlobalIsRuntimeError(t *testing.T) {
	machine := New()
	fn := script(machine, func(c *Chunk) {
		nameIdx := c.AddConstant(NewObj(machine.InternString("nope")))
		c.WriteOp(OpGetGlobal, 1)
		c.Write(byte(nameIdx), 1)
		c.WriteOp(OpReturn, 1)
	})

	err := machine.Run(fn)
	assert.Error(t, err)
	var rerr *RuntimeError
	assert.ErrorAs(t, err, &rerr)
}

func TestVMDivisionByZero(t *testing.T) {
	machine := New()
	fn := script(machine, func(c *Chunk) {
		c.WriteConstant(NewNumber(1), 1)
		c.WriteConstant(NewNumber(0), 1)
		c.WriteOp(OpDivide, 1)
		c.WriteOp(OpReturn, 1)
	})

	err := machine.Run(fn)
	assert.Error(t, err)
}

func TestVMNativeClock(t *testing.T) {
	machine := New()
	clockVal, ok := machine.Globals().Get(machine.InternString("clock"))
	assert.True(t, ok)
	assert.True(t, clockVal.IsNative())

	result, err := clockVal.AsNative().Fn(nil)
	assert.NoError(t, err)
	assert.True(t, result.AsNumber() > 0)
}
