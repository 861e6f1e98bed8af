package internal

import (
	"os"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/model"
)

func mustCreateModel(t *testing.T, fileName string) *model.Model {
	fileName = "../../test/definitions/" + fileName

	file, err := os.Open(fileName)
	if err != nil {
		t.Fatalf("failed to open definition file %s: %v", fileName, err)
	}

	defer file.Close()

	definition, err := model.ReadDefinition(file)
	if err != nil {
		t.Fatalf("failed to read definition: %v", err)
	}

	m, err := model.New(definition)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	return m
}

func mustCreateProcess(t *testing.T, fileName string) *Process {
	process, err := NewProcess(mustCreateModel(t, fileName), time.Now())
	if err != nil {
		t.Fatalf("failed to create process: %v", err)
	}
	return process
}

func mustParseDuration(t *testing.T, s string) model.ISO8601Duration {
	d, err := model.NewISO8601Duration(s)
	if err != nil {
		t.Fatalf("failed to parse ISO 8601 duration: %v", err)
	}
	return d
}
