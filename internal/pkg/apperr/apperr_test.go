package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidPlan, http.StatusBadRequest},
		{CodeAuth, http.StatusUnauthorized},
		{CodeInvalidSignature, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeSellerNotPayable, http.StatusForbidden},
		{CodeLimitPacks, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeUnresolvableIntent, http.StatusUnprocessableEntity},
		{CodePayment, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{Code("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.HTTPStatus(), string(tt.code))
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("checkout: %w", Payment(cause))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, CodePayment, appErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CodePayment))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestStatusOfForeignError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := New(CodeValidation, "bad").WithDetails(map[string]any{"a": 1})
	derived := base.WithDetails(map[string]any{"b": 2})

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
}

func TestUnresolvableIntentCarriesPaymentID(t *testing.T) {
	err := UnresolvableIntent("987", nil)
	assert.Equal(t, "987", err.Details["payment_id"])
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus())
}

func TestUnderpaidIsUnprocessable(t *testing.T) {
	err := Underpaid("55", 100, 499900)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus())
	assert.EqualValues(t, 499900, err.Details["price"])
}
