package vm

import "fmt"

// RuntimeError is returned by VM.Run when execution fails after a
// successful compile. It carries the call stack at the point of failure
// so callers can render a traceback.
type RuntimeError struct {
	Message string
	Trace   []string // one line per frame, innermost first
}

func (e *RuntimeError) Error() string {
	out := e.Message
	for _, line := range e.Trace {
		out += "\n" + line
	}
	return out
}

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	line := 0
	if vm.frameCount > 0 {
		f := &vm.frames[vm.frameCount-1]
		line = f.closure.Function.Chunk.GetLine(f.ip - 1)
	}

	err := &RuntimeError{Message: fmt.Sprintf("[line %d] runtime error: %s", line, msg)}
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		errLine := fn.Chunk.GetLine(f.ip - 1)
		err.Trace = append(err.Trace, fmt.Sprintf("[line %d] in %s", errLine, name))
	}
	return err
}
