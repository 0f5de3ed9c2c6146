package wire

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas are compiled once at package init. A compile failure is a
// programming error, not runtime input, so mustCompile panics.

const envelopeSchemaJSON = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"payload": {"type": "object"}
	}
}`

const sessionUpdateSchemaJSON = `{
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "integer"},
		"status": {
			"type": "string",
			"enum": ["pending", "running", "completed", "error", "halting", "halted"]
		}
	}
}`

const trajectorySchemaJSON = `{
	"type": "object",
	"required": ["id", "session_id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"session_id": {"type": "integer"},
		"record_type": {"type": "string"},
		"tool_name": {"type": "string"},
		"tool_parameters": {"type": "object"},
		"tool_result": {"type": "object"},
		"step_data": {"type": "object"},
		"is_error": {"type": "boolean"},
		"created_at": {"type": "string"}
	}
}`

const sessionSchemaJSON = `{
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"},
		"status": {
			"type": "string",
			"enum": ["pending", "running", "completed", "error", "halting", "halted", "unknown"]
		},
		"created_at": {"type": "string"},
		"updated_at": {"type": "string"},
		"metadata": {"type": "object"}
	}
}`

var (
	envelopeSchema      = mustCompile(envelopeSchemaJSON)
	sessionUpdateSchema = mustCompile(sessionUpdateSchemaJSON)
	trajectorySchema    = mustCompile(trajectorySchemaJSON)
	sessionSchema       = mustCompile(sessionSchemaJSON)
)

func mustCompile(schemaJSON string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("wire: invalid schema: %v", err))
	}
	return schema
}

// validate runs the document through the schema and flattens any violations
// into a single error.
func validate(schema *gojsonschema.Schema, document []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
