// ParamSchema validates executable/decorator parameter values against a
// JSON Schema document, using github.com/santhosh-tekuri/jsonschema/v5
// exactly the way the teacher's own core/types.Validator does
// (ToJSONSchema + jsonschema.Compiler with Draft2020), but trimmed down
// to the subset mlld's closed parameter-type set needs: string, integer,
// float, bool, object, array. (The teacher additionally supports a
// duration format and custom handle types that don't apply here.)
package value

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParamType is the closed set of parameter value types an executable or
// built-in transformer can declare.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "integer"
	ParamFloat  ParamType = "number"
	ParamBool   ParamType = "boolean"
	ParamObject ParamType = "object"
	ParamArray  ParamType = "array"
	ParamAny    ParamType = ""
)

// ParamSchema describes one declared parameter.
type ParamSchema struct {
	Name     string
	Type     ParamType
	Required bool
}

// toJSONSchema renders a minimal Draft2020-12 document for one parameter.
func (p ParamSchema) toJSONSchema() map[string]interface{} {
	doc := map[string]interface{}{}
	if p.Type != ParamAny {
		doc["type"] = string(p.Type)
	}
	return doc
}

// Validate checks value against the declared schemas, returning a
// TypeMismatch-flavored error (wrapped by callers into errs.Error) on the
// first violation. Unknown/extra values are not an error here — callers
// enforce arity separately per §4.4 ("missing trailing args become
// undefined").
func Validate(schemas []ParamSchema, args map[string]interface{}) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, p := range schemas {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("type-mismatch: missing required parameter %q", p.Name)
			}
			continue
		}
		doc := p.toJSONSchema()
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("type-mismatch: schema marshal failed for %q: %w", p.Name, err)
		}
		url := "mem://param/" + p.Name
		var schemaDoc interface{}
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			return fmt.Errorf("type-mismatch: schema decode failed for %q: %w", p.Name, err)
		}
		if err := compiler.AddResource(url, schemaDoc); err != nil {
			return fmt.Errorf("type-mismatch: schema resource failed for %q: %w", p.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("type-mismatch: schema compile failed for %q: %w", p.Name, err)
		}
		if err := schema.Validate(v); err != nil {
			return fmt.Errorf("type-mismatch: parameter %q: %w", p.Name, err)
		}
	}
	return nil
}
