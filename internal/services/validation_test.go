package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transferInput struct {
	ToAccountID string `json:"to_account_id" validate:"required,numeric"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Note        string `json:"note,omitempty" validate:"max=10"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&transferInput{ToAccountID: "1002", Amount: 50})
		assert.NoError(t, err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		err := vh.ValidateStruct(&transferInput{})
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		assert.Len(t, validationErrors, 2)
	})

	t.Run("fields reported by json name", func(t *testing.T) {
		err := vh.ValidateStruct(&transferInput{ToAccountID: "abc", Amount: 5, Note: "far too long a note"})
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		require.Len(t, validationErrors, 2)
		assert.Equal(t, "to_account_id", validationErrors[0].Field())
		assert.Equal(t, "numeric", validationErrors[0].Tag())
		assert.Equal(t, "note", validationErrors[1].Field())
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&transferInput{ToAccountID: "x"})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "to_account_id")
		assert.Contains(t, response.Details, "amount")
	})

	t.Run("non validator error carries no details", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("unexpected EOF"))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Invalid request", response.Error)
		assert.Nil(t, response.Details)
	})
}
