// Package compiler walks a parsed program and emits bytecode for the
// virtual machine in package vm. Unlike the single-pass token-to-bytecode
// compiler it's descended from, it operates on an already-built AST, but
// keeps the same core discipline: one pass over each function body, a
// positional locals/upvalues table instead of a generic symbol map, and
// a Compiler-per-function chain so nested function literals can resolve
// variables captured from any enclosing scope.
package compiler

import (
	"fmt"
	"strings"

	"lumen/ast"
	"lumen/vm"
)

// CompileError aggregates every error found while compiling a program, so
// a user sees all of them at once rather than stopping at the first.
type CompileError struct {
	Errors []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Errors, "\n")
}

// Compiler holds the state for compiling one function body: its locals
// and upvalues, the enclosing function's compiler (nil at the top level),
// and the function object bytecode is being emitted into.
type Compiler struct {
	vm       *vm.VM
	enclosing *Compiler
	function *vm.ObjFunction
	funcType FunctionType

	locals     []Local
	upvalues   []Upvalue
	scopeDepth int

	errs *[]string
}

// Compile compiles a parsed program into the implicit top-level script
// function, ready to hand to vm.VM.Run.
func Compile(program *ast.Program, machine *vm.VM) (*vm.ObjFunction, error) {
	errs := []string{}
	c := newCompiler(machine, nil, TypeScript, "", &errs)

	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	c.emitReturn(0)

	if len(errs) > 0 {
		return nil, &CompileError{Errors: errs}
	}
	return c.function, nil
}

func newCompiler(machine *vm.VM, enclosing *Compiler, funcType FunctionType, name string, errs *[]string) *Compiler {
	fn := machine.NewFunction()
	machine.PushCompileRoot(fn)

	c := &Compiler{
		vm:        machine,
		enclosing: enclosing,
		function:  fn,
		funcType:  funcType,
		errs:      errs,
	}
	// Slot 0 is reserved for the running closure itself (unused directly
	// by user code, but keeps local slot indices aligned with clox).
	c.locals = append(c.locals, Local{Name: "", Depth: 0})

	if funcType != TypeScript {
		fn.Name = machine.InternString(name)
	}
	return c
}

func (c *Compiler) finish() *vm.ObjFunction {
	c.vm.PopCompileRoot()
	return c.function
}

func (c *Compiler) errorAt(line int, format string, args ...interface{}) {
	msg := fmt.Sprintf("[line %d] compile error: %s", line, fmt.Sprintf(format, args...))
	*c.errs = append(*c.errs, msg)
}

func (c *Compiler) chunk() *vm.Chunk { return c.function.Chunk }

// ---------------------------------------------------------------------
// Bytecode emission helpers
// ---------------------------------------------------------------------

func (c *Compiler) emitByte(b byte, line int) {
	c.chunk().Write(b, line)
}

func (c *Compiler) emitOp(op vm.OpCode, line int) {
	c.chunk().WriteOp(op, line)
}

func (c *Compiler) emitOpByte(op vm.OpCode, operand byte, line int) {
	c.emitOp(op, line)
	c.emitByte(operand, line)
}

func (c *Compiler) emitConstant(value vm.Value, line int) {
	c.chunk().WriteConstant(value, line)
}

// identifierConstant interns name and returns its constant pool index,
// used for the name operand of global variable opcodes.
func (c *Compiler) identifierConstant(name string, line int) byte {
	idx := c.chunk().AddConstant(vm.NewObj(c.vm.InternString(name)))
	if idx > 255 {
		c.errorAt(line, "too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitJump(op vm.OpCode, line int) int {
	c.emitOp(op, line)
	c.emitByte(0xff, line)
	c.emitByte(0xff, line)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int, line int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.errorAt(line, "jump target too far")
	}
	c.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int, line int) {
	c.emitOp(vm.OpLoop, line)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.errorAt(line, "loop body too large")
	}
	c.emitByte(byte((offset>>8)&0xff), line)
	c.emitByte(byte(offset&0xff), line)
}

func (c *Compiler) emitReturn(line int) {
	c.emitOp(vm.OpNil, line)
	c.emitOp(vm.OpReturn, line)
}

// ---------------------------------------------------------------------
// Scopes and variable resolution
// ---------------------------------------------------------------------

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

func (c *Compiler) endScope(line int) {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.IsCaptured {
			c.emitOp(vm.OpCloseUpvalue, line)
		} else {
			c.emitOp(vm.OpPop, line)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) addLocal(name string, line int) {
	if len(c.locals) >= 256 {
		c.errorAt(line, "too many local variables in one function")
		return
	}
	c.locals = append(c.locals, Local{Name: name, Depth: -1})
}

// declareVariable registers name as a new local in the current scope (a
// no-op at global scope, where variables are looked up by name at
// runtime instead). It rejects redeclaring a name already local to this
// exact scope.
func (c *Compiler) declareVariable(name string, line int) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.Depth != -1 && l.Depth < c.scopeDepth {
			break
		}
		if l.Name == name {
			c.errorAt(line, "variable '%s' already declared in this scope", name)
			return
		}
	}
	c.addLocal(name, line)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].Depth = c.scopeDepth
}

func resolveLocal(c *Compiler, name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			if c.locals[i].Depth == -1 {
				c.errorAt(0, "can't read local variable '%s' in its own initializer", name)
				return -1
			}
			return i
		}
	}
	return -1
}

func resolveUpvalue(c *Compiler, name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := resolveLocal(c.enclosing, name); local != -1 {
		c.enclosing.locals[local].IsCaptured = true
		return addUpvalue(c, uint8(local), true)
	}
	if up := resolveUpvalue(c.enclosing, name); up != -1 {
		return addUpvalue(c, uint8(up), false)
	}
	return -1
}

func addUpvalue(c *Compiler, index uint8, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, Upvalue{Index: index, IsLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarStatement:
		c.compileVarStatement(s)
	case *ast.ReturnStatement:
		c.compileReturnStatement(s)
	case *ast.PrintStatement:
		c.compileExpression(s.Value)
		c.emitOp(vm.OpPrint, s.Token.Line)
	case *ast.ExpressionStatement:
		if s.Expression == nil {
			return
		}
		c.compileExpression(s.Expression)
		c.emitOp(vm.OpPop, s.Token.Line)
	case *ast.BlockStatement:
		c.beginScope()
		for _, st := range s.Statements {
			c.compileStatement(st)
		}
		c.endScope(s.Token.Line)
	case *ast.IfStatement:
		c.compileIfStatement(s)
	case *ast.WhileStatement:
		c.compileWhileStatement(s)
	case *ast.ForStatement:
		c.compileForStatement(s)
	case *ast.FunctionStatement:
		c.compileFunctionStatement(s)
	default:
		c.errorAt(0, "unsupported statement %T", s)
	}
}

func (c *Compiler) compileVarStatement(s *ast.VarStatement) {
	line := s.Token.Line
	if c.scopeDepth > 0 {
		c.declareVariable(s.Name.Value, line)
		if s.Value != nil {
			c.compileExpression(s.Value)
		} else {
			c.emitOp(vm.OpNil, line)
		}
		c.markInitialized()
		return
	}

	if s.Value != nil {
		c.compileExpression(s.Value)
	} else {
		c.emitOp(vm.OpNil, line)
	}
	idx := c.identifierConstant(s.Name.Value, line)
	c.emitOpByte(vm.OpDefineGlobal, idx, line)
}

func (c *Compiler) compileReturnStatement(s *ast.ReturnStatement) {
	line := s.Token.Line
	if c.funcType == TypeScript {
		c.errorAt(line, "can't return from top-level code")
	}
	if s.ReturnValue != nil {
		c.compileExpression(s.ReturnValue)
	} else {
		c.emitOp(vm.OpNil, line)
	}
	c.emitOp(vm.OpReturn, line)
}

func (c *Compiler) compileIfStatement(s *ast.IfStatement) {
	line := s.Token.Line
	c.compileExpression(s.Condition)
	thenJump := c.emitJump(vm.OpJumpIfFalse, line)
	c.emitOp(vm.OpPop, line)
	c.compileStatement(s.Consequence)

	elseJump := c.emitJump(vm.OpJump, line)
	c.patchJump(thenJump, line)
	c.emitOp(vm.OpPop, line)

	if s.Alternative != nil {
		c.compileStatement(s.Alternative)
	}
	c.patchJump(elseJump, line)
}

func (c *Compiler) compileWhileStatement(s *ast.WhileStatement) {
	line := s.Token.Line
	loopStart := len(c.chunk().Code)
	c.compileExpression(s.Condition)
	exitJump := c.emitJump(vm.OpJumpIfFalse, line)
	c.emitOp(vm.OpPop, line)
	c.compileStatement(s.Body)
	c.emitLoop(loopStart, line)
	c.patchJump(exitJump, line)
	c.emitOp(vm.OpPop, line)
}

func (c *Compiler) compileForStatement(s *ast.ForStatement) {
	line := s.Token.Line
	c.beginScope()

	if s.Init != nil {
		c.compileStatement(s.Init)
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if s.Condition != nil {
		c.compileExpression(s.Condition)
		exitJump = c.emitJump(vm.OpJumpIfFalse, line)
		c.emitOp(vm.OpPop, line)
	}

	if s.Post != nil {
		bodyJump := c.emitJump(vm.OpJump, line)
		incrementStart := len(c.chunk().Code)
		c.compileExpression(s.Post)
		c.emitOp(vm.OpPop, line)
		c.emitLoop(loopStart, line)
		loopStart = incrementStart
		c.patchJump(bodyJump, line)
	}

	c.compileStatement(s.Body)
	c.emitLoop(loopStart, line)

	if exitJump != -1 {
		c.patchJump(exitJump, line)
		c.emitOp(vm.OpPop, line)
	}

	c.endScope(line)
}

func (c *Compiler) compileFunctionStatement(s *ast.FunctionStatement) {
	line := s.Token.Line
	name := s.Name.Value

	isLocal := c.scopeDepth > 0
	if isLocal {
		c.declareVariable(name, line)
		c.markInitialized()
	}

	c.compileFunctionBody(name, s.Parameters, s.Body, line)

	if isLocal {
		// The closure's value is already sitting in the local's slot.
		return
	}
	idx := c.identifierConstant(name, line)
	c.emitOpByte(vm.OpDefineGlobal, idx, line)
}

// compileFunctionBody compiles a nested function (named or anonymous)
// into its own chunk, then emits OP_CLOSURE (plus its upvalue capture
// descriptors) into the enclosing compiler so the closure object is left
// on top of the operand stack.
func (c *Compiler) compileFunctionBody(name string, params []*ast.Identifier, body *ast.BlockStatement, line int) {
	inner := newCompiler(c.vm, c, TypeFunction, name, c.errs)
	inner.scopeDepth = c.scopeDepth + 1

	for _, p := range params {
		inner.declareVariable(p.Value, line)
		inner.markInitialized()
	}
	inner.function.Arity = len(params)

	for _, st := range body.Statements {
		inner.compileStatement(st)
	}
	inner.emitReturn(line)

	fn := inner.finish()
	constIdx := c.chunk().AddConstant(vm.NewObj(fn))
	if constIdx > 255 {
		c.errorAt(line, "too many constants in one chunk")
		return
	}
	c.emitOpByte(vm.OpClosure, byte(constIdx), line)
	for _, uv := range inner.upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.emitByte(isLocal, line)
		c.emitByte(uv.Index, line)
	}
}

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emitConstant(vm.NewNumber(e.Value), e.Token.Line)
	case *ast.StringLiteral:
		c.emitConstant(vm.NewObj(c.vm.InternString(e.Value)), e.Token.Line)
	case *ast.BooleanLiteral:
		if e.Value {
			c.emitOp(vm.OpTrue, e.Token.Line)
		} else {
			c.emitOp(vm.OpFalse, e.Token.Line)
		}
	case *ast.NilLiteral:
		c.emitOp(vm.OpNil, e.Token.Line)
	case *ast.Identifier:
		c.compileIdentifier(e)
	case *ast.PrefixExpression:
		c.compilePrefixExpression(e)
	case *ast.InfixExpression:
		c.compileInfixExpression(e)
	case *ast.AssignExpression:
		c.compileAssignExpression(e)
	case *ast.FunctionLiteral:
		c.compileFunctionBody("", e.Parameters, e.Body, e.Token.Line)
	case *ast.CallExpression:
		c.compileCallExpression(e)
	default:
		c.errorAt(0, "unsupported expression %T", e)
	}
}

func (c *Compiler) compileIdentifier(e *ast.Identifier) {
	line := e.Token.Line
	if slot := resolveLocal(c, e.Value); slot != -1 {
		c.emitOpByte(vm.OpGetLocal, byte(slot), line)
		return
	}
	if slot := resolveUpvalue(c, e.Value); slot != -1 {
		c.emitOpByte(vm.OpGetUpvalue, byte(slot), line)
		return
	}
	idx := c.identifierConstant(e.Value, line)
	c.emitOpByte(vm.OpGetGlobal, idx, line)
}

func (c *Compiler) compileAssignExpression(e *ast.AssignExpression) {
	line := e.Token.Line
	c.compileExpression(e.Value)

	if slot := resolveLocal(c, e.Name.Value); slot != -1 {
		c.emitOpByte(vm.OpSetLocal, byte(slot), line)
		return
	}
	if slot := resolveUpvalue(c, e.Name.Value); slot != -1 {
		c.emitOpByte(vm.OpSetUpvalue, byte(slot), line)
		return
	}
	idx := c.identifierConstant(e.Name.Value, line)
	c.emitOpByte(vm.OpSetGlobal, idx, line)
}

func (c *Compiler) compilePrefixExpression(e *ast.PrefixExpression) {
	c.compileExpression(e.Right)
	line := e.Token.Line
	switch e.Operator {
	case "-":
		c.emitOp(vm.OpNegate, line)
	case "!":
		c.emitOp(vm.OpNot, line)
	default:
		c.errorAt(line, "unknown prefix operator '%s'", e.Operator)
	}
}

func (c *Compiler) compileInfixExpression(e *ast.InfixExpression) {
	line := e.Token.Line

	if e.Operator == "and" {
		c.compileExpression(e.Left)
		jump := c.emitJump(vm.OpJumpIfFalse, line)
		c.emitOp(vm.OpPop, line)
		c.compileExpression(e.Right)
		c.patchJump(jump, line)
		return
	}
	if e.Operator == "or" {
		c.compileExpression(e.Left)
		elseJump := c.emitJump(vm.OpJumpIfFalse, line)
		endJump := c.emitJump(vm.OpJump, line)
		c.patchJump(elseJump, line)
		c.emitOp(vm.OpPop, line)
		c.compileExpression(e.Right)
		c.patchJump(endJump, line)
		return
	}

	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	switch e.Operator {
	case "+":
		c.emitOp(vm.OpAdd, line)
	case "-":
		c.emitOp(vm.OpSubtract, line)
	case "*":
		c.emitOp(vm.OpMultiply, line)
	case "/":
		c.emitOp(vm.OpDivide, line)
	case "==":
		c.emitOp(vm.OpEqual, line)
	case "!=":
		c.emitOp(vm.OpEqual, line)
		c.emitOp(vm.OpNot, line)
	case "<":
		c.emitOp(vm.OpLess, line)
	case ">":
		c.emitOp(vm.OpGreater, line)
	case "<=":
		c.emitOp(vm.OpGreater, line)
		c.emitOp(vm.OpNot, line)
	case ">=":
		c.emitOp(vm.OpLess, line)
		c.emitOp(vm.OpNot, line)
	default:
		c.errorAt(line, "unknown infix operator '%s'", e.Operator)
	}
}

func (c *Compiler) compileCallExpression(e *ast.CallExpression) {
	line := e.Token.Line
	c.compileExpression(e.Function)
	if len(e.Arguments) > 255 {
		c.errorAt(line, "can't have more than 255 arguments")
	}
	for _, arg := range e.Arguments {
		c.compileExpression(arg)
	}
	c.emitOpByte(vm.OpCall, byte(len(e.Arguments)), line)
}
