package main

import (
	"encoding/json"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of assemble.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := jsonschema.Reflect(&v1.Config{})
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}
}
