// Policy document loading (§6.6: ".mlld/policy.yaml"), using yaml.v3 for
// the on-disk codec and jsonschema/v5 to validate the decoded document's
// shape before it is compiled into a *Policy — the same "yaml in, schema
// validated, then compiled" pipeline the teacher's core/types package
// runs for its own config documents.
package security

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// policyDocument is the on-disk shape of a .mlld/policy.yaml file. Both
// yaml and json tags are declared (lowercase, matching policySchema's
// property names) since validateAgainstSchema re-marshals the decoded
// struct to json before handing it to jsonschema — without matching json
// tags, encoding/json would fall back to the exported Go field names and
// every schema check would spuriously fail.
type policyDocument struct {
	Name           string          `yaml:"name" json:"name"`
	Allow          []string        `yaml:"allow" json:"allow"`
	Deny           []string        `yaml:"deny" json:"deny"`
	Autoverify     bool            `yaml:"autoverify" json:"autoverify"`
	VerifyTemplate string          `yaml:"verifyTemplate" json:"verifyTemplate"`
	Guards         []guardDocument `yaml:"guards" json:"guards"`
}

type guardDocument struct {
	Name  string `yaml:"name" json:"name"`
	ForOp string `yaml:"forOp" json:"forOp"`
}

// policySchema is the minimal Draft2020-12 shape a policy document must
// satisfy: an object with string-array allow/deny lists.
const policySchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"allow": {"type": "array", "items": {"type": "string"}},
		"deny": {"type": "array", "items": {"type": "string"}},
		"autoverify": {"type": "boolean"},
		"verifyTemplate": {"type": "string"},
		"guards": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"forOp": {"type": "string"}
				},
				"required": ["name", "forOp"]
			}
		}
	}
}`

// LoadPolicyFile reads, schema-validates, and compiles a policy document
// from path. Guard programs (the `when [...]` bodies) are wired onto the
// returned Policy separately by the caller, since they are parsed mlld
// AST, not YAML — this function only establishes the Guard stubs by name/
// forOp so internal/evaluator can attach parsed programs afterward.
func LoadPolicyFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}

	var doc policyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}

	if err := validateAgainstSchema(doc); err != nil {
		return nil, fmt.Errorf("policy: %s failed schema validation: %w", path, err)
	}

	p := &Policy{
		Name:           doc.Name,
		Autoverify:     doc.Autoverify,
		VerifyTemplate: doc.VerifyTemplate,
		Guards:         map[string]*Guard{},
	}
	for _, pattern := range doc.Allow {
		p.Rules = append(p.Rules, CapabilityRule{Pattern: pattern, Allow: true})
	}
	for _, pattern := range doc.Deny {
		p.Rules = append(p.Rules, CapabilityRule{Pattern: pattern, Allow: false})
	}
	for _, g := range doc.Guards {
		p.Guards[g.ForOp] = &Guard{Name: g.Name, ForOp: g.ForOp}
	}
	return p, nil
}

func validateAgainstSchema(doc policyDocument) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	var schemaDoc interface{}
	if err := json.Unmarshal([]byte(policySchema), &schemaDoc); err != nil {
		return fmt.Errorf("internal policy schema is invalid json: %w", err)
	}
	const url = "mem://security/policy"
	if err := compiler.AddResource(url, schemaDoc); err != nil {
		return fmt.Errorf("compile policy schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile policy schema: %w", err)
	}

	// Re-marshal the decoded struct to a plain map so jsonschema validates
	// the same shape the YAML actually carried, not Go's zero-value
	// defaults for absent fields.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal decoded policy document: %w", err)
	}
	var asMap interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return err
	}
	return schema.Validate(asMap)
}
