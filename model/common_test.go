package model

import (
	"os"
	"testing"
)

func mustCreateModel(t *testing.T, fileName string) *Model {
	model, err := New(mustReadDefinition(t, fileName))
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	return model
}

func mustReadDefinition(t *testing.T, fileName string) Definition {
	fileName = "../test/definitions/" + fileName

	file, err := os.Open(fileName)
	if err != nil {
		t.Fatalf("failed to open definition file %s: %v", fileName, err)
	}

	defer file.Close()

	definition, err := ReadDefinition(file)
	if err != nil {
		t.Fatalf("failed to read definition: %v", err)
	}

	return definition
}
