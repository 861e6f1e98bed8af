package cli

import (
	"fmt"
	"os"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
	"github.com/spf13/cobra"
)

func flagQueryOptions(c *cobra.Command, options *engine.QueryOptions) {
	c.Flags().IntVar(&options.Limit, "limit", 100, "")
	c.Flags().IntVar(&options.Offset, "offset", 0, "")
}

func readDefinitionFile(name string) (model.Definition, error) {
	file, err := os.Open(name)
	if err != nil {
		return model.Definition{}, fmt.Errorf("failed to open definition file %s: %v", name, err)
	}

	defer file.Close()

	definition, err := model.ReadDefinition(file)
	if err != nil {
		return model.Definition{}, fmt.Errorf("failed to read definition file %s: %v", name, err)
	}
	return definition, nil
}

func readOverlayFile(name string) ([]model.Overlay, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open overlay file %s: %v", name, err)
	}

	defer file.Close()

	overlays, err := model.ReadOverlays(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay file %s: %v", name, err)
	}
	return overlays, nil
}
