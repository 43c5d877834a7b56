package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyGenerationError(t *testing.T) {
	t.Run("tool support failures map to model compatibility", func(t *testing.T) {
		cases := []error{
			errors.New(`400: "tools" is not supported by this model`),
			errors.New("model does not support function calling"),
			errors.New("tool use is not enabled for this model"),
		}
		for _, err := range cases {
			custom := ClassifyGenerationError(err)
			assert.Equal(t, CodeModelCompatibility, custom.Code, "input: %v", err)
			assert.Equal(t, http.StatusBadRequest, custom.StatusCode)
		}
	})

	t.Run("reasoning mode failures map to model compatibility", func(t *testing.T) {
		custom := ClassifyGenerationError(errors.New("reasoning effort is invalid for this model"))
		assert.Equal(t, CodeModelCompatibility, custom.Code)
	})

	t.Run("everything else becomes a chat error", func(t *testing.T) {
		custom := ClassifyGenerationError(errors.New("connection reset by peer"))
		assert.Equal(t, CodeChatError, custom.Code)
		assert.Equal(t, http.StatusInternalServerError, custom.StatusCode)
	})

	t.Run("custom errors pass through unchanged", func(t *testing.T) {
		original := NewPaymentRequiredError("payment required")
		assert.Same(t, original, ClassifyGenerationError(original))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ClassifyGenerationError(nil))
	})
}

func TestCustomErrorUnwrap(t *testing.T) {
	internal := errors.New("pq: connection refused")
	custom := New500Error(internal)
	assert.ErrorIs(t, custom, internal)
}
