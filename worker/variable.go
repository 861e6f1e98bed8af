package worker

import (
	"encoding/json"
	"fmt"
)

// Variables is used to get and set variables of a process instance.
type Variables map[string]any

// Decode decodes the value of a variable into a struct, a map or a slice.
func (v Variables) Decode(name string, value any) error {
	variable, ok := v[name]
	if !ok {
		return fmt.Errorf("variable %s is not set", name)
	}

	b, err := json.Marshal(variable)
	if err != nil {
		return fmt.Errorf("failed to encode variable %s: %v", name, err)
	}
	if err := json.Unmarshal(b, value); err != nil {
		return fmt.Errorf("failed to decode variable %s: %v", name, err)
	}
	return nil
}

func (v Variables) Has(name string) bool {
	_, ok := v[name]
	return ok
}

func (v Variables) Put(name string, value any) {
	if name != "" {
		v[name] = value
	}
}

// String returns the value of a string variable or an empty string, if the variable is not set or not a string.
func (v Variables) String(name string) string {
	s, _ := v[name].(string)
	return s
}
