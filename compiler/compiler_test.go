package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/compiler"
	"lumen/lexer"
	"lumen/parser"
	"lumen/vm"
)

func compileSource(t *testing.T, source string) (*vm.ObjFunction, error) {
	t.Helper()
	l := lexer.New(source)
	p := parser.New(l)
	program := p.ParseProgram()
	require.Empty(t, p.Errors())
	return compiler.Compile(program, vm.New())
}

func TestCompileSimpleProgram(t *testing.T) {
	fn, err := compileSource(t, `var x = 1; print x;`)
	require.NoError(t, err)
	assert.NotNil(t, fn)
	assert.Greater(t, len(fn.Chunk.Code), 0)
}

func TestCompileRejectsReturnAtTopLevel(t *testing.T) {
	_, err := compileSource(t, `return 1;`)
	assert.Error(t, err)
}

func TestCompileRejectsDuplicateLocalInSameScope(t *testing.T) {
	_, err := compileSource(t, `
fun f() {
  var a = 1;
  var a = 2;
}
`)
	assert.Error(t, err)
}

func TestCompileAllowsShadowingInNestedScope(t *testing.T) {
	_, err := compileSource(t, `
fun f() {
  var a = 1;
  {
    var a = 2;
  }
}
`)
	assert.NoError(t, err)
}

func TestCompileFunctionArityRecorded(t *testing.T) {
	fn, err := compileSource(t, `
fun add(a, b) {
  return a + b;
}
`)
	require.NoError(t, err)
	// The top-level script's only constant besides the name is the
	// compiled function itself.
	found := false
	for _, c := range fn.Chunk.Constants {
		if c.IsObj() {
			if inner, ok := c.AsObj().(*vm.ObjFunction); ok {
				assert.Equal(t, 2, inner.Arity)
				found = true
			}
		}
	}
	assert.True(t, found, "expected the compiled add() constant in the script chunk")
}

func TestCompileAccumulatesMultipleErrors(t *testing.T) {
	_, err := compileSource(t, `
return 1;
fun f() {
  var a = 1;
  var a = 2;
}
`)
	require.Error(t, err)
	cerr, ok := err.(*compiler.CompileError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(cerr.Errors), 2)
}
