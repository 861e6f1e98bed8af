package worker

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/gclaussn/go-flow/engine"
	lru "github.com/hashicorp/golang-lru/v2"
)

// scriptCacheSize limits the number of compiled scripts, kept by a script executor.
const scriptCacheSize = 128

// Script creates an executor, which evaluates the JavaScript of the element's "script" extension.
//
// Process variables are exposed as globals. The script must evaluate to an object, whose properties are
// set as process variables, or to undefined. A thrown error fails the task run with code "ScriptFailure",
// unless the thrown object provides a "code" property.
//
//	({approved: amount < 1000})
//
// The function log(message) writes to the task run's logger.
func Script() engine.TaskExecutor {
	cache, err := lru.New[string, *goja.Program](scriptCacheSize)
	if err != nil {
		panic(err) // cache size is positive
	}
	return &scriptExecutor{cache: cache}
}

type scriptExecutor struct {
	cache *lru.Cache[string, *goja.Program]
}

func (s *scriptExecutor) Execute(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
	script := execution.Properties().Extensions["script"]
	if script == "" {
		return engine.Failed(ErrorCodeMissingScript, fmt.Sprintf("element %s defines no script extension", execution.ElementId()))
	}

	program, err := s.compile(execution.ElementId(), script)
	if err != nil {
		return engine.Failed(ErrorCodeScriptFailure, err.Error())
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	global := vm.GlobalObject()
	for name, value := range execution.Variables() {
		if err := global.Set(name, value); err != nil {
			return engine.Failed(ErrorCodeScriptFailure, fmt.Sprintf("failed to set variable %s: %v", name, err))
		}
	}

	logger := execution.Logger()
	if err := global.Set("log", func(message string) {
		logger.Info(message)
	}); err != nil {
		return engine.Failed(ErrorCodeScriptFailure, fmt.Sprintf("failed to set log function: %v", err))
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	v, err := vm.RunProgram(program)
	if err != nil {
		if ctx.Err() != nil {
			return engine.Failed(ErrorCodeContextDone, ctx.Err().Error())
		}
		return scriptFailure(err)
	}

	if goja.IsUndefined(v) || goja.IsNull(v) {
		return engine.Completed(nil)
	}

	result, ok := v.Export().(map[string]any)
	if !ok {
		return engine.Failed(ErrorCodeScriptFailure, fmt.Sprintf("script must evaluate to an object, but got %s", v.ExportType()))
	}

	return engine.Completed(result)
}

func (s *scriptExecutor) compile(elementId string, script string) (*goja.Program, error) {
	if program, ok := s.cache.Get(script); ok {
		return program, nil
	}

	program, err := goja.Compile(elementId, script, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %v", err)
	}

	s.cache.Add(script, program)
	return program, nil
}

// scriptFailure maps a thrown error to a failed outcome. A thrown object can define the error code.
func scriptFailure(err error) engine.TaskOutcome {
	exception, ok := err.(*goja.Exception)
	if !ok {
		return engine.Failed(ErrorCodeScriptFailure, err.Error())
	}

	if thrown, ok := exception.Value().(*goja.Object); ok {
		if code := thrown.Get("code"); code != nil && !goja.IsUndefined(code) {
			message := ""
			if m := thrown.Get("message"); m != nil && !goja.IsUndefined(m) {
				message = m.String()
			}
			return engine.Failed(code.String(), message)
		}
	}

	return engine.Failed(ErrorCodeScriptFailure, exception.Error())
}
