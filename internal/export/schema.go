package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaName = "ghost-export.schema.json"

//go:embed export.schema.json
var schemaData []byte

var (
	exportSchema *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal export schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaName, doc); err != nil {
			compileErr = fmt.Errorf("add export schema resource: %w", err)
			return
		}

		exportSchema, err = compiler.Compile(schemaName)
		if err != nil {
			compileErr = fmt.Errorf("compile export schema: %w", err)
		}
	})
	return compileErr
}

// Validate checks raw JSON against the Ghost export schema.
func Validate(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := exportSchema.Validate(v); err != nil {
		return fmt.Errorf("export validation failed: %w", err)
	}
	return nil
}
