// Snapshot tool: loads an endpoint schema document, synthesizes its form
// descriptors, and writes them as indented JSON. Useful for checking what
// a UI will be asked to render before wiring the document into a client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	falaipaw "github.com/crim50n/falai-paw"
	"github.com/crim50n/falai-paw/pkg/fields"
	"github.com/crim50n/falai-paw/pkg/schema"
)

type snapshot struct {
	Location    string              `json:"location"`
	Descriptors []fields.Descriptor `json:"descriptors"`
	Notes       []fields.Note       `json:"notes,omitempty"`
}

func main() {
	var (
		schemaPath = flag.String("schema", "endpoints/openapi.json", "schema document path")
		outputPath = flag.String("output", "", "output path (stdout when empty)")
	)
	flag.Parse()

	ctx := context.Background()

	loader := falaipaw.NewLoader()
	doc, err := loader.Load(ctx, schema.SourceFromFile(*schemaPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load schema: %v\n", err)
		os.Exit(1)
	}

	descriptors, report, err := fields.New(schema.NewResolver(doc)).Synthesize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to synthesize form: %v\n", err)
		os.Exit(1)
	}

	payload, err := sonic.MarshalIndent(snapshot{
		Location:    doc.Location(),
		Descriptors: descriptors,
		Notes:       report.Notes,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode snapshot: %v\n", err)
		os.Exit(1)
	}

	if *outputPath == "" {
		fmt.Println(string(payload))
		return
	}
	if err := os.WriteFile(*outputPath, payload, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Wrote %d descriptors to %s\n", len(descriptors), *outputPath)
}
