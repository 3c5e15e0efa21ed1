package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryRequest struct {
	Query string `json:"query" validate:"required,notblank,max=20"`
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=sync async"`
	Limit int    `validate:"min=0"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{Query: "What is RAG?", Mode: "sync"})
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "query is required", fields["query"])
	})

	t.Run("blank field", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{Query: "   "})
		require.Error(t, err)
		assert.Equal(t, "query must not be blank", GetValidationFields(err)["query"])
	})

	t.Run("too long", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{Query: strings.Repeat("a", 21)})
		require.Error(t, err)
		assert.Equal(t, "query must be at most 20", GetValidationFields(err)["query"])
	})

	t.Run("oneof", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{Query: "q", Mode: "later"})
		require.Error(t, err)
		assert.Equal(t, "mode must be one of: sync async", GetValidationFields(err)["mode"])
	})

	t.Run("field without json tag keeps its Go name", func(t *testing.T) {
		err := ValidateStruct(&queryRequest{Query: "q", Limit: -1})
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err), "Limit")
	})
}

func TestNewValidationError(t *testing.T) {
	err := ValidateStruct(&queryRequest{Mode: "later", Limit: -1})
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)

	assert.Equal(t, "Validation failed", validationErr.Message)
	assert.Len(t, validationErr.Fields, 3)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields:  map[string]string{"field1": "error1"},
	}

	assert.Equal(t, "Test validation error", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "test"}))
	assert.False(t, IsValidationError(assert.AnError))
}

func TestGetValidationFields(t *testing.T) {
	fields := map[string]string{"field1": "error1", "field2": "error2"}
	assert.Equal(t, fields, GetValidationFields(&ValidationError{Message: "test", Fields: fields}))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
