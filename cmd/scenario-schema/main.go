package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"skirmish/engine/internal/sim"
)

// scenario-schema emits the JSON schema for scenario files, for editor
// validation and CI linting of scenario repositories.
func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the schema (default: stdout)")
	flag.Parse()

	schema := buildSchema()
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal schema: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if outPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(new(sim.Scenario))
	schema.Title = "Skirmish Scenario"
	schema.Description = "Validates battle definition files loaded at daemon startup."
	return schema
}
