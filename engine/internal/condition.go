package internal

import (
	"fmt"

	"github.com/dop251/goja"
)

// compileCondition compiles the JavaScript expression of a sequence flow.
func compileCondition(sequenceFlowId string, condition string) (*goja.Program, error) {
	program, err := goja.Compile(sequenceFlowId, condition, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile condition %q: %v", condition, err)
	}
	return program, nil
}

// evaluateCondition runs a compiled condition against the process variables.
// Variables are exposed as globals, so referencing a variable that is not set raises a ReferenceError.
func evaluateCondition(program *goja.Program, variables map[string]any) (bool, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	global := vm.GlobalObject()
	for name, value := range variables {
		if err := global.Set(name, value); err != nil {
			return false, fmt.Errorf("failed to set variable %s: %v", name, err)
		}
	}

	v, err := vm.RunProgram(program)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %v", err)
	}

	return v.ToBoolean(), nil
}
