package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuePredicatesAndTruthiness(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.True(t, Nil.IsFalsey())

	assert.True(t, NewBool(false).IsFalsey())
	assert.True(t, NewBool(true).IsTruthy())

	assert.True(t, NewNumber(0).IsTruthy(), "zero is truthy, unlike falsey-number languages")
	assert.True(t, NewNumber(3.5).IsNumber())
	assert.Equal(t, 3.5, NewNumber(3.5).AsNumber())
}

func TestValueEquals(t *testing.T) {
	assert.True(t, NewNumber(1).Equals(NewNumber(1)))
	assert.False(t, NewNumber(1).Equals(NewNumber(2)))
	assert.False(t, NewNumber(1).Equals(NewBool(true)))
	assert.True(t, Nil.Equals(Nil))
}

func TestValueStringInterningEquality(t *testing.T) {
	vm := New()
	a := vm.InternString("how far")
	b := vm.InternString("how far")
	assert.Same(t, a, b, "equal-content strings must share one interned object")

	va := NewObj(a)
	vb := NewObj(b)
	assert.True(t, va.Equals(vb))
}

func TestValueTypeNames(t *testing.T) {
	assert.Equal(t, "nil", Nil.TypeName())
	assert.Equal(t, "boolean", NewBool(true).TypeName())
	assert.Equal(t, "number", NewNumber(1).TypeName())

	vm := New()
	s := vm.InternString("hi")
	assert.Equal(t, "string", NewObj(s).TypeName())
}

func TestNumberStringFormatting(t *testing.T) {
	assert.Equal(t, "3", NewNumber(3).String())
	assert.Equal(t, "3.5", NewNumber(3.5).String())
}
