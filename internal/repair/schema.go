package repair

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const chaptersSchemaURL = "bookforge://schemas/chapters.json"

const chaptersSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {"$ref": "#/$defs/node"},
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "title", "slug"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "slug": {"type": "string"},
        "children": {"type": "array", "items": {"$ref": "#/$defs/node"}}
      }
    }
  }
}`

var chapterSchema = sync.OnceValues(compileChapterSchema)

func compileChapterSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(chaptersSchemaURL, strings.NewReader(chaptersSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(chaptersSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateChapters checks a decoded JSON value against the outline schema.
func validateChapters(payload any) error {
	schema, err := chapterSchema()
	if err != nil {
		return err
	}
	return schema.Validate(payload)
}
