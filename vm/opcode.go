package vm

// OpCode identifies a single bytecode instruction.
type OpCode byte

const (
	OpConstant     OpCode = iota // 1-byte operand: constant pool index
	OpConstantLong               // 3-byte little-endian operand: constant pool index
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal    // 1-byte operand: stack slot
	OpSetLocal    // 1-byte operand: stack slot
	OpGetGlobal   // 1-byte operand: constant pool index of name
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue // 1-byte operand: upvalue index
	OpSetUpvalue
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump         // 2-byte operand: forward offset
	OpJumpIfFalse  // 2-byte operand: forward offset
	OpLoop         // 2-byte operand: backward offset
	OpCall         // 1-byte operand: argument count
	OpClosure      // 1-byte function constant index, followed by per-upvalue (isLocal byte, index byte) pairs
	OpCloseUpvalue
	OpReturn
)

// opcodeNames gives each opcode a readable name for disassembly/tracing.
var opcodeNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpConstantLong: "OP_CONSTANT_LONG",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
}

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OP_UNKNOWN"
}
