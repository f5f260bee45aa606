package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lumen/compiler"
	"lumen/lexer"
	"lumen/parser"
	"lumen/vm"
)

const (
	exitOK      = 0
	exitCompile = 65
	exitRuntime = 70
)

const prompt = "lumen> "

var (
	traceFlag    bool
	gcStressFlag bool
	logLevel     string
)

func main() {
	root := &cobra.Command{
		Use:   "lumen",
		Short: "A bytecode-compiled scripting language",
		Long:  "lumen compiles and runs scripts through a one-pass bytecode compiler and a stack-based virtual machine with closures and precise garbage collection.",
		Run: func(cmd *cobra.Command, args []string) {
			log := buildLogger(logLevel)
			defer log.Sync()
			runREPL(log)
		},
	}

	root.PersistentFlags().BoolVar(&traceFlag, "trace", envFlag("LUMEN_TRACE"), "log each executed instruction (at debug level, so only shown with --log-level debug)")
	root.PersistentFlags().BoolVar(&gcStressFlag, "gc-stress", envFlag("LUMEN_GC_STRESS"), "collect garbage before every allocation")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Compile and run a script file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log := buildLogger(logLevel)
			defer log.Sync()
			os.Exit(runFile(args[0], log))
		},
	}
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// envFlag reports whether an environment variable holds a truthy value,
// used to seed a flag's default before cobra/pflag parses argv. A CLI
// flag passed explicitly always overrides this default.
func envFlag(name string) bool {
	v := os.Getenv(name)
	return v == "1" || v == "true"
}

func buildLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newVM(log *zap.Logger) *vm.VM {
	return vm.New(
		vm.WithLogger(log),
		vm.WithTrace(traceFlag),
		vm.WithGCStress(gcStressFlag),
	)
}

func runFile(path string, log *zap.Logger) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read %s: %s\n", path, err)
		return exitRuntime
	}

	machine := newVM(log)
	return interpret(machine, string(content), os.Stderr)
}

func runREPL(log *zap.Logger) {
	fmt.Println("lumen REPL - type 'exit' to quit")
	machine := newVM(log)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "exit" || line == "quit" {
			return
		}
		if line == "" {
			continue
		}
		interpret(machine, line, os.Stdout)
	}
}

// interpret compiles and runs source against machine, printing any error
// to out and returning the process exit code the result warrants.
func interpret(machine *vm.VM, source string, out *os.File) int {
	l := lexer.New(source)
	p := parser.New(l)
	program := p.ParseProgram()

	if len(p.Errors()) > 0 {
		for _, msg := range p.Errors() {
			fmt.Fprintln(out, "parse error:", msg)
		}
		return exitCompile
	}

	fn, err := compiler.Compile(program, machine)
	if err != nil {
		fmt.Fprintln(out, err)
		return exitCompile
	}

	if err := machine.Run(fn); err != nil {
		fmt.Fprintln(out, err)
		return exitRuntime
	}

	return exitOK
}
