package vm

import (
	"fmt"
	"strconv"
)

// ValueType tags the kind of a Value's payload.
type ValueType byte

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is the tagged union every slot of the VM stack, the constant pool,
// and the globals/intern tables hold. It is a discriminated struct rather
// than a NaN-boxed machine word; see DESIGN.md for why that tradeoff was
// made for a Go host whose own GC must see every heap reference as a real
// pointer.
type Value struct {
	typ    ValueType
	number float64
	obj    Obj
}

// Nil is the canonical 'nothing' value.
var Nil = Value{typ: ValNil}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	if b {
		return Value{typ: ValBool, number: 1}
	}
	return Value{typ: ValBool, number: 0}
}

// NewNumber creates a double-precision number value.
func NewNumber(n float64) Value {
	return Value{typ: ValNumber, number: n}
}

// NewObj wraps a heap object reference as a Value.
func NewObj(o Obj) Value {
	return Value{typ: ValObj, obj: o}
}

func (v Value) IsNil() bool    { return v.typ == ValNil }
func (v Value) IsBool() bool   { return v.typ == ValBool }
func (v Value) IsNumber() bool { return v.typ == ValNumber }
func (v Value) IsObj() bool    { return v.typ == ValObj }

func (v Value) AsBool() bool      { return v.number != 0 }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Obj        { return v.obj }

// IsString reports whether the value references a heap string.
func (v Value) IsString() bool {
	_, ok := v.obj.(*ObjString)
	return v.typ == ValObj && ok
}

// AsString extracts the underlying ObjString. Callers must check IsString first.
func (v Value) AsString() *ObjString {
	return v.obj.(*ObjString)
}

// IsClosure reports whether the value references a closure.
func (v Value) IsClosure() bool {
	_, ok := v.obj.(*ObjClosure)
	return v.typ == ValObj && ok
}

func (v Value) AsClosure() *ObjClosure {
	return v.obj.(*ObjClosure)
}

// IsNative reports whether the value references a native function.
func (v Value) IsNative() bool {
	_, ok := v.obj.(*ObjNative)
	return v.typ == ValObj && ok
}

func (v Value) AsNative() *ObjNative {
	return v.obj.(*ObjNative)
}

// TypeName returns a human-readable type name used in error messages.
func (v Value) TypeName() string {
	switch v.typ {
	case ValNil:
		return "nil"
	case ValBool:
		return "boolean"
	case ValNumber:
		return "number"
	case ValObj:
		switch v.obj.(type) {
		case *ObjString:
			return "string"
		case *ObjFunction:
			return "function"
		case *ObjClosure:
			return "function"
		case *ObjNative:
			return "native function"
		case *ObjUpvalue:
			return "upvalue"
		}
	}
	return "unknown"
}

// IsFalsey reports whether a value is falsey: only nil and false are.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// IsTruthy is the complement of IsFalsey.
func (v Value) IsTruthy() bool {
	return !v.IsFalsey()
}

// Equals implements the language's equality: structural for primitives,
// identity for objects (which collapses to structural equality for
// interned strings, since equal-content strings share one object).
func (v Value) Equals(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case ValNil:
		return true
	case ValBool:
		return v.AsBool() == other.AsBool()
	case ValNumber:
		return v.number == other.number
	case ValObj:
		return v.obj == other.obj
	default:
		return false
	}
}

// String renders the value's canonical textual form, used by 'print'.
// String concatenation accepts only two string operands, so it does not
// go through this.
func (v Value) String() string {
	switch v.typ {
	case ValNil:
		return "nil"
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValNumber:
		return formatNumber(v.number)
	case ValObj:
		switch o := v.obj.(type) {
		case *ObjString:
			return o.Chars
		case *ObjFunction:
			if o.Name != nil {
				return fmt.Sprintf("<fn %s>", o.Name.Chars)
			}
			return "<script>"
		case *ObjClosure:
			if o.Function.Name != nil {
				return fmt.Sprintf("<fn %s>", o.Function.Name.Chars)
			}
			return "<fn>"
		case *ObjNative:
			return fmt.Sprintf("<native fn %s>", o.Name)
		case *ObjUpvalue:
			return "<upvalue>"
		}
	}
	return "<unknown>"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
