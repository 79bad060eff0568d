package scoring

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// ScriptEndpoint scores rows with a user-supplied JavaScript function,
// useful for local simulation and for exercising batches without a remote
// service. The script must define a function `score(row)` returning the
// output payload; a thrown exception becomes a row-level failure.
//
// goja runtimes are not safe for concurrent use, so each Score call runs on
// a fresh runtime seeded from the compiled program.
type ScriptEndpoint struct {
	program *goja.Program
	logger  *zap.Logger
}

// dangerousGlobals are removed from every runtime before the script runs
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// NewScriptEndpoint compiles the scoring script.
// Compilation errors are reported here, before any batch starts.
func NewScriptEndpoint(script string, logger *zap.Logger) (*ScriptEndpoint, error) {
	if script == "" {
		return nil, fmt.Errorf("scoring script cannot be empty")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	program, err := goja.Compile("score.js", script, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile scoring script: %w", err)
	}
	return &ScriptEndpoint{
		program: program,
		logger:  logger,
	}, nil
}

// Score evaluates score(row) on a fresh runtime.
// The runtime is interrupted when ctx expires so a runaway script cannot
// wedge a worker.
func (e *ScriptEndpoint) Score(ctx context.Context, row Row) (output Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("panic during script execution: %v", r)
		}
	}()

	vm := goja.New()
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("context expired")
		case <-done:
		}
	}()

	if _, err := vm.RunProgram(e.program); err != nil {
		return nil, scriptError(err)
	}

	scoreFn, ok := goja.AssertFunction(vm.Get("score"))
	if !ok {
		return nil, fmt.Errorf("scoring script must define a score(row) function")
	}

	value, err := scoreFn(goja.Undefined(), vm.ToValue(map[string]interface{}(row)))
	if err != nil {
		return nil, scriptError(err)
	}
	return normalizeOutput(value.Export()), nil
}

// scriptError maps goja failures onto the runner's error vocabulary
func scriptError(err error) error {
	if _, ok := err.(*goja.InterruptedError); ok {
		return sdkerrors.ErrScriptInterrupted
	}
	if exc, ok := err.(*goja.Exception); ok {
		return fmt.Errorf("script error: %s", exc.Error())
	}
	return fmt.Errorf("script execution failed: %w", err)
}
