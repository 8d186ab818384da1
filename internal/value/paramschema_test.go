package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassesOnMatchingTypes(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{
		{Name: "count", Type: ParamInt, Required: true},
		{Name: "label", Type: ParamString},
	}
	err := Validate(schemas, map[string]interface{}{"count": float64(3), "label": "x"})
	assert.NoError(t, err)
}

func TestValidateFailsOnTypeMismatch(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{{Name: "count", Type: ParamInt}}
	err := Validate(schemas, map[string]interface{}{"count": "not a number"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "type-mismatch")
}

func TestValidateMissingRequiredFails(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{{Name: "count", Type: ParamInt, Required: true}}
	err := Validate(schemas, map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing required parameter")
}

func TestValidateMissingOptionalPasses(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{{Name: "count", Type: ParamInt, Required: false}}
	err := Validate(schemas, map[string]interface{}{})
	assert.NoError(t, err)
}

func TestValidateAnyTypeAcceptsEverything(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{{Name: "whatever", Type: ParamAny, Required: true}}
	err := Validate(schemas, map[string]interface{}{"whatever": map[string]interface{}{"nested": true}})
	assert.NoError(t, err)
}

func TestValidateBoolAndArrayTypes(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{
		{Name: "flag", Type: ParamBool, Required: true},
		{Name: "items", Type: ParamArray, Required: true},
	}
	err := Validate(schemas, map[string]interface{}{"flag": true, "items": []interface{}{1, 2}})
	assert.NoError(t, err)
}

func TestValidateArrayTypeRejectsScalar(t *testing.T) {
	t.Parallel()
	schemas := []ParamSchema{{Name: "items", Type: ParamArray}}
	err := Validate(schemas, map[string]interface{}{"items": "not-an-array"})
	assert.Error(t, err)
}
