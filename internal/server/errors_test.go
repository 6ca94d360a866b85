package server

import (
	"errors"
	"net/http"
	"testing"

	catalogdomain "github.com/KeyT9999/keyt-shop-backend/internal/catalog/domain"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not the owner", orderdomain.ErrNotOwner, http.StatusForbidden, "forbidden"},
		{"bad transition", orderdomain.ErrInvalidTransition, http.StatusConflict, "conflict"},
		{"out of stock", catalogdomain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"pool exhausted", catalogdomain.ErrPoolExhausted, http.StatusConflict, "insufficient_stock"},
		{"order missing", orderdomain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"record missing", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"everything else", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		{"bad email", orderdomain.ErrInvalidCustomerEmail, http.StatusBadRequest, "validation_error"},
		{"empty items", orderdomain.ErrEmptyItems, http.StatusBadRequest, "validation_error"},
		{"product invalid", catalogdomain.ErrInvalidPrice, http.StatusBadRequest, "validation_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestMapErrorDerivesValidationField(t *testing.T) {
	status, payload := mapError(orderdomain.ErrInvalidCustomerEmail)
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "customer_email", payload.Errors[0].Field)
		assert.Equal(t, "invalid_customer_email", payload.Errors[0].Code)
	}

	_, payload = mapError(orderdomain.ErrMissingRequiredField)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "required_field", payload.Errors[0].Field)
	}
}

func TestMapErrorKeepsExplicitValidationList(t *testing.T) {
	status, payload := mapError(newValidationError("email", "invalid_customer_email", "email is required"))
	assert.Equal(t, http.StatusBadRequest, status)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "email", payload.Errors[0].Field)
		assert.Equal(t, "email is required", payload.Errors[0].Message)
	}
}
