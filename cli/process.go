package cli

import (
	"context"

	"github.com/gclaussn/go-flow/engine"
	"github.com/spf13/cobra"
)

func newProcessCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process",
		Short:       "Create processes",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessCreateCmd(cli))

	return &c
}

func newProcessCreateCmd(cli *Cli) *cobra.Command {
	var (
		fileName         string
		overlayFileNames []string
		version          string

		cmd engine.CreateProcessCmd
	)

	c := cobra.Command{
		Use:   "create",
		Short: "Create a process",
		RunE: func(c *cobra.Command, _ []string) error {
			definition, err := readDefinitionFile(fileName)
			if err != nil {
				return err
			}

			if version != "" {
				definition.Version = version
			}

			for _, overlayFileName := range overlayFileNames {
				overlays, err := readOverlayFile(overlayFileName)
				if err != nil {
					return err
				}
				cmd.Overlays = append(cmd.Overlays, overlays...)
			}

			cmd.Definition = definition

			process, err := cli.e.CreateProcess(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(process)
			return nil
		},
	}

	c.Flags().StringVar(&fileName, "file", "", "Path to a YAML or JSON process definition")
	c.Flags().StringSliceVar(&overlayFileNames, "overlay", nil, "Path to a YAML or JSON file, containing configuration overlays")
	c.Flags().StringVar(&version, "version", "", "Version, that replaces the version of the definition")

	c.MarkFlagRequired("file")

	c.MarkFlagFilename("file", ".yaml", ".yml", ".json")
	c.MarkFlagFilename("overlay", ".yaml", ".yml", ".json")

	return &c
}
