package handler

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaCleaner rewrites a tool's JSON schema for a specific provider's
// quirks before it's sent in a request. Owned by the handler rather than
// the transport or engine: what counts as a "quirk" is a property
// of the model API a handler talks to, not of the messaging transport.
type SchemaCleaner interface {
	Clean(schema *jsonschema.Schema) *jsonschema.Schema
}

// AnthropicSchemaCleaner strips schema constructs the Anthropic tool-use
// API rejects: "format" on string types outside a small allow-list, and
// "additionalProperties" on nested objects, both commonly produced by
// generic JSON Schema generators.
type AnthropicSchemaCleaner struct{}

var anthropicAllowedStringFormats = map[string]bool{
	"date-time": true,
	"uri":       true,
}

// Clean returns a copy of schema with unsupported constructs removed,
// recursing into object properties and array items.
func (AnthropicSchemaCleaner) Clean(schema *jsonschema.Schema) *jsonschema.Schema {
	if schema == nil {
		return nil
	}
	out := *schema

	if out.Type == "string" && out.Format != "" && !anthropicAllowedStringFormats[out.Format] {
		out.Format = ""
	}

	if out.Properties != nil {
		cleaned := make(map[string]*jsonschema.Schema, len(out.Properties))
		for name, prop := range out.Properties {
			cleaned[name] = (AnthropicSchemaCleaner{}).Clean(prop)
		}
		out.Properties = cleaned
	}
	if out.Items != nil {
		out.Items = (AnthropicSchemaCleaner{}).Clean(out.Items)
	}
	out.AdditionalProperties = nil

	return &out
}
