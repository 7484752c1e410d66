package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizationRules_Apply(t *testing.T) {
	rules := SanitizationRules{
		"users": {"password_hash", "api_token"},
	}
	rows := []Row{
		{"id": 1, "email": "a@example.com", "password_hash": "secret", "api_token": "tok"},
		{"id": 2, "email": "b@example.com", "password_hash": nil},
	}

	sanitized := rules.Apply("users", rows)
	require.Len(t, sanitized, 2)

	assert.Equal(t, RedactionMarker, sanitized[0]["password_hash"])
	assert.Equal(t, RedactionMarker, sanitized[0]["api_token"])
	assert.Equal(t, "a@example.com", sanitized[0]["email"])

	assert.Equal(t, RedactionMarker, sanitized[1]["password_hash"])
	_, added := sanitized[1]["api_token"]
	assert.False(t, added, "absent fields are not added")

	assert.Equal(t, "secret", rows[0]["password_hash"], "input rows are left untouched")
	assert.Nil(t, rows[1]["password_hash"])
}

func TestSanitizationRules_ApplyIsolatesCopies(t *testing.T) {
	rules := SanitizationRules{"users": {"password_hash"}}
	rows := []Row{{"id": 1, "password_hash": "secret"}}

	sanitized := rules.Apply("users", rows)
	sanitized[0]["id"] = 99

	assert.Equal(t, 1, rows[0]["id"])
}

func TestSanitizationRules_TableWithoutRules(t *testing.T) {
	rules := SanitizationRules{"users": {"password_hash"}}
	rows := []Row{{"id": 1, "password_hash": "kept"}}

	assert.Equal(t, rows, rules.Apply("kunder", rows))
	assert.Equal(t, rows, SanitizationRules(nil).Apply("users", rows))
	assert.Empty(t, rules.Fields("kunder"))
	assert.Equal(t, []string{"password_hash"}, rules.Fields("users"))
}

func TestSanitizationRules_Validate(t *testing.T) {
	assert.NoError(t, SanitizationRules{"users": {"password_hash"}}.Validate())
	assert.NoError(t, SanitizationRules(nil).Validate())

	err := SanitizationRules{"users": {" "}, "": {"x"}}.Validate()
	require.Error(t, err)

	var validationErrs ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Len(t, validationErrs, 2)
}
