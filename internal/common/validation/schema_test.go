package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["providerId", "seekerId"],
  "properties": {
    "providerId": {"type": "string", "minLength": 1},
    "seekerId": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1}
  }
}`

func TestSchema_Validate(t *testing.T) {
	schema := MustCompile(testSchema)

	tests := []struct {
		name       string
		document   string
		valid      bool
		errorField string
	}{
		{"valid document", `{"providerId":"adv-1","seekerId":"cl-1"}`, true, ""},
		{"missing seeker", `{"providerId":"adv-1"}`, false, "seekerId"},
		{"empty provider", `{"providerId":"","seekerId":"cl-1"}`, false, "providerId"},
		{"wrong type", `{"providerId":"adv-1","seekerId":"cl-1","limit":"ten"}`, false, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := schema.ValidateJSON(tt.document)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.True(t, res.HasErrors(tt.errorField), "errors: %v", res.GetErrorMessages())
			}
		})
	}
}

func TestSchema_ValidateGoValue(t *testing.T) {
	schema := MustCompile(testSchema)

	res, err := schema.Validate(map[string]interface{}{"providerId": "adv-1", "seekerId": "cl-1", "limit": 3})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestCompile_RejectsBrokenSchema(t *testing.T) {
	_, err := Compile(`{"type": "nonsense"}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`not json`) })
}

func TestSchema_MalformedDocument(t *testing.T) {
	_, err := MustCompile(testSchema).ValidateJSON(`{"providerId":`)
	assert.Error(t, err)
}
