package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatYAML, formatJSON:
		return nil
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", format))
	}
}

// writeStructured renders v as YAML or JSON.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}
