// Command gen-schema reflects internal/loader.Document into a JSON Schema
// document, doc-commented straight from the Go source, for editor tooling
// (yaml-language-server et al.) to validate Emakefiles against. Modeled on
// the teacher's cmd/gen-jsonschema/main.go: an invopop/jsonschema.Reflector
// with AddGoComments pointed at this module, writing the result either to
// stdout or to the path given as the first argument.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/dalecbuild/emake/internal/loader"
)

func main() {
	var r jsonschema.Reflector
	if err := r.AddGoComments("github.com/dalecbuild/emake", "./"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	schema := r.Reflect(&loader.Document{})

	dt, err := json.MarshalIndent(schema, "", "\t")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		if err := os.MkdirAll(filepath.Dir(os.Args[1]), 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := os.WriteFile(os.Args[1], dt, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	os.Stdout.Write(dt)
	fmt.Println()
}
