package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		schema    string
		doc       string
		wantField string
	}{
		{
			name:   "jd analysis valid",
			schema: JDAnalysis,
			doc:    `{"jobIdentity":{"title":"Backend Engineer","company":"Acme"},"requiredSkills":["Go","PostgreSQL"],"keywords":["microservices"]}`,
		},
		{
			name:      "jd analysis missing title",
			schema:    JDAnalysis,
			doc:       `{"jobIdentity":{"company":"Acme"},"requiredSkills":[]}`,
			wantField: "jobIdentity",
		},
		{
			name:      "jd analysis skills not array",
			schema:    JDAnalysis,
			doc:       `{"jobIdentity":{"title":"SRE"},"requiredSkills":"Go"}`,
			wantField: "requiredSkills",
		},
		{
			name:   "match result valid",
			schema: MatchResult,
			doc:    `{"matchScore":72,"matchedSkills":["Go"],"missingSkills":["Kafka"]}`,
		},
		{
			name:      "match score out of range",
			schema:    MatchResult,
			doc:       `{"matchScore":140,"matchedSkills":[],"missingSkills":[]}`,
			wantField: "matchScore",
		},
		{
			name:      "match score fractional",
			schema:    MatchResult,
			doc:       `{"matchScore":72.5,"matchedSkills":[],"missingSkills":[]}`,
			wantField: "matchScore",
		},
		{
			name:   "resume valid",
			schema: ResumeDocument,
			doc: `{"fullName":"Ada Lovelace","summary":"Engineer","skills":["Go"],
				"experience":[{"title":"Engineer","company":"Analytical Engines","bullets":["Built things"]}]}`,
		},
		{
			name:      "resume experience entry missing bullets",
			schema:    ResumeDocument,
			doc:       `{"fullName":"Ada","summary":"","skills":[],"experience":[{"title":"Engineer","company":"X"}]}`,
			wantField: "experience.0",
		},
		{
			name:      "resume missing name",
			schema:    ResumeDocument,
			doc:       `{"summary":"","skills":[],"experience":[]}`,
			wantField: "(root)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.schema, []byte(tt.doc))
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.Equal(t, tt.schema, ve.Schema)
			fields := make([]string, 0, len(ve.Errors))
			for _, fe := range ve.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidate_NotJSON(t *testing.T) {
	err := Validate(MatchResult, []byte("{ not json"))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("cover_letter", []byte(`{}`))
	var le *SchemaLoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "cover_letter", le.Name)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{Schema: "match_result", Errors: []FieldError{
		{Field: "matchScore", Message: "Must be less than or equal to 100"},
		{Field: "(root)", Message: "missingSkills is required"},
	}}
	assert.Equal(t, "match_result validation failed:\n"+
		"  1. matchScore: Must be less than or equal to 100\n"+
		"  2. (root): missingSkills is required", ve.Error())
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`
	assert.NoError(t, ValidateJSONString(schema, `{"id":"x"}`))

	var ve *ValidationError
	require.True(t, errors.As(ValidateJSONString(schema, `{"id":3}`), &ve))
	assert.Equal(t, "id", ve.Errors[0].Field)

	var le *SchemaLoadError
	assert.True(t, errors.As(ValidateJSONString(`{"type": 12}`, `{}`), &le))
}
