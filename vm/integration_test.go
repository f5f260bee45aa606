package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/compiler"
	"lumen/lexer"
	"lumen/parser"
	"lumen/vm"
)

func runSource(t *testing.T, source string) string {
	t.Helper()
	var out strings.Builder

	l := lexer.New(source)
	p := parser.New(l)
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "parse errors: %v", p.Errors())

	machine := vm.New(vm.WithStdout(func(s string) { out.WriteString(s) }))
	fn, err := compiler.Compile(program, machine)
	require.NoError(t, err)

	err = machine.Run(fn)
	require.NoError(t, err)

	return out.String()
}

func TestClosuresCaptureByReference(t *testing.T) {
	source := `
fun makeCounter() {
  var count = 0;
  fun increment() {
    count = count + 1;
    print count;
  }
  return increment;
}

var counter = makeCounter();
counter();
counter();
counter();
`
	assert.Equal(t, "1\n2\n3\n", runSource(t, source))
}

func TestClosuresEachGetOwnUpvalue(t *testing.T) {
	source := `
fun makeCounter() {
  var count = 0;
  fun increment() {
    count = count + 1;
    return count;
  }
  return increment;
}

var a = makeCounter();
var b = makeCounter();
a();
a();
print a();
print b();
`
	assert.Equal(t, "3\n1\n", runSource(t, source))
}

func TestRecursiveFunction(t *testing.T) {
	source := `
fun fib(n) {
  if (n < 2) { return n; }
  return fib(n - 1) + fib(n - 2);
}
print fib(10);
`
	assert.Equal(t, "55\n", runSource(t, source))
}

func TestForLoopAndScoping(t *testing.T) {
	source := `
var total = 0;
for (var i = 0; i < 5; i = i + 1) {
  total = total + i;
}
print total;
`
	assert.Equal(t, "10\n", runSource(t, source))
}

func TestWhileLoop(t *testing.T) {
	source := `
var i = 0;
var acc = "";
while (i < 3) {
  acc = acc + "x";
  i = i + 1;
}
print acc;
`
	assert.Equal(t, "xxx\n", runSource(t, source))
}

func TestShortCircuitLogic(t *testing.T) {
	source := `
fun sideEffect() {
  print "called";
  return true;
}
var r = false and sideEffect();
print r;
`
	// sideEffect must never run: "and" short-circuits on a falsey left side.
	assert.Equal(t, "false\n", runSource(t, source))
}

func TestGlobalAndLocalShadowing(t *testing.T) {
	source := `
var x = "global";
fun show() {
  var x = "local";
  print x;
}
show();
print x;
`
	assert.Equal(t, "local\nglobal\n", runSource(t, source))
}

func TestRuntimeErrorOnUndefinedVariable(t *testing.T) {
	l := lexer.New("print missing;")
	p := parser.New(l)
	program := p.ParseProgram()
	require.Empty(t, p.Errors())

	machine := vm.New()
	fn, err := compiler.Compile(program, machine)
	require.NoError(t, err)

	err = machine.Run(fn)
	assert.Error(t, err)
}
