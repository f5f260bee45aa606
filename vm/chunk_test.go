package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkWriteConstantShortForm(t *testing.T) {
	c := NewChunk()
	c.WriteConstant(NewNumber(42), 1)

	assert.Equal(t, OpConstant, OpCode(c.Code[0]))
	assert.Equal(t, byte(0), c.Code[1])
	assert.Len(t, c.Constants, 1)
	assert.Equal(t, 42.0, c.Constants[0].AsNumber())
}

func TestChunkWriteConstantLongForm(t *testing.T) {
	c := NewChunk()
	for i := 0; i < 300; i++ {
		c.AddConstant(NewNumber(float64(i)))
	}
	c.WriteConstant(NewNumber(9999), 1)

	assert.Equal(t, OpConstantLong, OpCode(c.Code[0]))
	idx := int(c.Code[1]) | int(c.Code[2])<<8 | int(c.Code[3])<<16
	assert.Equal(t, 300, idx)
	assert.Equal(t, 9999.0, c.Constants[idx].AsNumber())
}

func TestChunkLineTracking(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNil, 5)
	c.WriteOp(OpTrue, 7)

	assert.Equal(t, 5, c.GetLine(0))
	assert.Equal(t, 7, c.GetLine(1))
	assert.Equal(t, -1, c.GetLine(99))
}

func TestChunkDisassemble(t *testing.T) {
	c := NewChunk()
	c.WriteConstant(NewNumber(1), 1)
	c.WriteOp(OpReturn, 1)

	out := c.Disassemble("test")
	assert.Contains(t, out, "== test ==")
	assert.Contains(t, out, "OP_CONSTANT")
	assert.Contains(t, out, "OP_RETURN")
}
